package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"

	"scriptdesk/internal/config"
	"scriptdesk/internal/store"
)

func novelsRouter(h *NovelsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/novels", Handle(h.ListNovels))
	r.Post("/api/novels", Handle(h.CreateNovel))
	r.Get("/api/novels/{id}", Handle(h.GetNovel))
	r.Put("/api/novels/{id}", Handle(h.UpdateNovel))
	r.Delete("/api/novels/{id}", Handle(h.DeleteNovel))
	r.Get("/api/novels/{id}/chapters", Handle(h.ListChapters))
	r.Post("/api/novels/{id}/chapters", Handle(h.CreateChapter))
	r.Get("/api/chapters/{id}", Handle(h.GetChapter))
	r.Put("/api/chapters/{id}", Handle(h.UpdateChapter))
	r.Delete("/api/chapters/{id}", Handle(h.DeleteChapter))
	return r
}

func TestNovelAndChapterLifecycle(t *testing.T) {
	r := novelsRouter(NewNovelsHandler(newTestStore(t), newTestCache()))

	if rec, _ := do(t, r, http.MethodPost, "/api/novels", `{"title":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected title validation, got %d", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodPost, "/api/novels", `{"title":"x","extra_data":[1,2]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected extra_data validation, got %d", rec.Code)
	}

	rec, env := do(t, r, http.MethodPost, "/api/novels", `{"title":"Night Harbor","genre":"mystery"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create novel: %d %s", rec.Code, rec.Body.String())
	}
	var novel store.Novel
	if err := json.Unmarshal(env.Data, &novel); err != nil || novel.Status != "ongoing" {
		t.Fatalf("unexpected novel: %v %s", err, env.Data)
	}
	nid := strconv.FormatInt(novel.ID, 10)

	rec, env = do(t, r, http.MethodPost, "/api/novels/"+nid+"/chapters", `{"title":"One","content":"你好世界"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chapter: %d %s", rec.Code, rec.Body.String())
	}
	var ch store.Chapter
	if err := json.Unmarshal(env.Data, &ch); err != nil || ch.WordCount != 4 {
		t.Fatalf("expected rune word count 4: %v %s", err, env.Data)
	}
	cid := strconv.FormatInt(ch.ID, 10)

	if rec, _ := do(t, r, http.MethodPost, "/api/novels/999/chapters", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing novel, got %d", rec.Code)
	}

	rec, env = do(t, r, http.MethodPut, "/api/chapters/"+cid, `{"status":"published"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update chapter: %d %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, &ch); err != nil || ch.Status != "published" {
		t.Fatalf("unexpected chapter: %s", env.Data)
	}

	_, env = do(t, r, http.MethodGet, "/api/novels/"+nid+"/chapters", "")
	var chapters []store.Chapter
	if err := json.Unmarshal(env.Data, &chapters); err != nil || len(chapters) != 1 {
		t.Fatalf("unexpected chapters: %s", env.Data)
	}

	if rec, _ := do(t, r, http.MethodDelete, "/api/novels/"+nid, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete novel: %d", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodGet, "/api/chapters/"+cid, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("chapter should be gone with its novel, got %d", rec.Code)
	}
	if rec, _ := do(t, r, http.MethodGet, "/api/novels/"+nid, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("novel should be gone, got %d", rec.Code)
	}
}

func TestNovelReadsAreCachedAndInvalidatedOnWrite(t *testing.T) {
	c := newTestCache()
	r := novelsRouter(NewNovelsHandler(newTestStore(t), c))

	_, env := do(t, r, http.MethodPost, "/api/novels", `{"title":"Night Harbor"}`)
	var novel store.Novel
	if err := json.Unmarshal(env.Data, &novel); err != nil {
		t.Fatalf("decode novel: %v", err)
	}
	path := "/api/novels/" + strconv.FormatInt(novel.ID, 10)

	if rec, _ := do(t, r, http.MethodGet, path, ""); rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first read should miss")
	}
	if rec, _ := do(t, r, http.MethodGet, path, ""); rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second read should hit")
	}
	if rec, _ := do(t, r, http.MethodGet, "/api/novels", ""); rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("list is keyed separately from a single novel")
	}

	if rec, _ := do(t, r, http.MethodPut, path, `{"title":"Day Harbor"}`); rec.Code != http.StatusOK {
		t.Fatalf("update: %d", rec.Code)
	}
	rec, env := do(t, r, http.MethodGet, path, "")
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("read after update should miss")
	}
	if err := json.Unmarshal(env.Data, &novel); err != nil || novel.Title != "Day Harbor" {
		t.Fatalf("expected updated title, got %s", env.Data)
	}

	if rec, _ := do(t, r, http.MethodGet, "/api/novels/999", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if s, _ := c.Stats(config.SegmentAPI); s.Size != 1 {
		t.Fatalf("not-found reads must not be cached, size=%d", s.Size)
	}
}
