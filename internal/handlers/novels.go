package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"scriptdesk/internal/apperr"
	"scriptdesk/internal/cache"
	"scriptdesk/internal/config"
	"scriptdesk/internal/store"
	"scriptdesk/pkg/logging"
)

// NovelStore is the persistence used by NovelsHandler.
type NovelStore interface {
	CreateNovel(ctx context.Context, n *store.Novel) error
	GetNovel(ctx context.Context, id int64) (*store.Novel, error)
	ListNovels(ctx context.Context) ([]store.Novel, error)
	UpdateNovel(ctx context.Context, id int64, u store.NovelUpdate) (*store.Novel, error)
	DeleteNovel(ctx context.Context, id int64) error

	CreateChapter(ctx context.Context, c *store.Chapter) error
	GetChapter(ctx context.Context, id int64) (*store.Chapter, error)
	ListChapters(ctx context.Context, novelID int64) ([]store.Chapter, error)
	UpdateChapter(ctx context.Context, id int64, u store.ChapterUpdate) (*store.Chapter, error)
	DeleteChapter(ctx context.Context, id int64) error
}

// NovelsHandler serves /api/novels and /api/chapters. Reads go through the
// api segment; every successful write invalidates it.
type NovelsHandler struct {
	Store NovelStore
	Cache cache.Cache
}

func NewNovelsHandler(s NovelStore, c cache.Cache) *NovelsHandler {
	return &NovelsHandler{Store: s, Cache: c}
}

type novelRequest struct {
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Genre          *string         `json:"genre"`
	CoverImage     *string         `json:"cover_image"`
	ExtraData      json.RawMessage `json:"extra_data"`
	RollingSummary *string         `json:"rolling_summary"`
	Status         *string         `json:"status"`
}

type chapterRequest struct {
	Title       *string `json:"title"`
	Content     *string `json:"content"`
	Description *string `json:"description"`
	WordCount   *int    `json:"word_count"`
	Status      *string `json:"status"`
	OrderIndex  *int    `json:"order_index"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *NovelsHandler) ListNovels(w http.ResponseWriter, r *http.Request) error {
	return cachedRead(w, r, h.Cache, config.SegmentAPI, 0, "novels loaded", func(ctx context.Context) (any, error) {
		return h.Store.ListNovels(ctx)
	})
}

func (h *NovelsHandler) CreateNovel(w http.ResponseWriter, r *http.Request) error {
	var req novelRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	title := strings.TrimSpace(deref(req.Title))
	if title == "" {
		return apperr.Validation("title is required")
	}
	if err := checkExtraData(req.ExtraData); err != nil {
		return err
	}

	n := store.Novel{
		Title:          title,
		Description:    deref(req.Description),
		Genre:          deref(req.Genre),
		CoverImage:     deref(req.CoverImage),
		ExtraData:      req.ExtraData,
		RollingSummary: deref(req.RollingSummary),
		Status:         deref(req.Status),
	}
	if err := h.Store.CreateNovel(r.Context(), &n); err != nil {
		return err
	}
	h.invalidate(r)
	writeSuccess(w, http.StatusCreated, "novel created", n)
	return nil
}

func (h *NovelsHandler) GetNovel(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	return cachedRead(w, r, h.Cache, config.SegmentAPI, 0, "novel loaded", func(ctx context.Context) (any, error) {
		return h.Store.GetNovel(ctx, id)
	})
}

func (h *NovelsHandler) UpdateNovel(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req novelRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return apperr.Validation("title must not be empty")
	}
	if err := checkExtraData(req.ExtraData); err != nil {
		return err
	}

	n, err := h.Store.UpdateNovel(r.Context(), id, store.NovelUpdate{
		Title:          req.Title,
		Description:    req.Description,
		Genre:          req.Genre,
		CoverImage:     req.CoverImage,
		ExtraData:      req.ExtraData,
		RollingSummary: req.RollingSummary,
		Status:         req.Status,
	})
	if err != nil {
		return err
	}
	h.invalidate(r)
	writeSuccess(w, http.StatusOK, "novel updated", n)
	return nil
}

func (h *NovelsHandler) DeleteNovel(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := h.Store.DeleteNovel(r.Context(), id); err != nil {
		return err
	}
	h.invalidate(r)
	writeSuccess(w, http.StatusOK, "novel deleted", map[string]any{"id": id})
	return nil
}

func (h *NovelsHandler) ListChapters(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	return cachedRead(w, r, h.Cache, config.SegmentAPI, 0, "chapters loaded", func(ctx context.Context) (any, error) {
		return h.Store.ListChapters(ctx, id)
	})
}

func (h *NovelsHandler) CreateChapter(w http.ResponseWriter, r *http.Request) error {
	novelID, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req chapterRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	c := store.Chapter{
		NovelID:     novelID,
		Title:       deref(req.Title),
		Content:     deref(req.Content),
		Description: deref(req.Description),
		Status:      deref(req.Status),
	}
	if req.WordCount != nil {
		if *req.WordCount < 0 {
			return apperr.Validation("word_count must not be negative")
		}
		c.WordCount = *req.WordCount
	}
	if req.OrderIndex != nil {
		c.OrderIndex = *req.OrderIndex
	}
	if err := h.Store.CreateChapter(r.Context(), &c); err != nil {
		return err
	}
	h.invalidate(r)
	writeSuccess(w, http.StatusCreated, "chapter created", c)
	return nil
}

func (h *NovelsHandler) GetChapter(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	return cachedRead(w, r, h.Cache, config.SegmentAPI, 0, "chapter loaded", func(ctx context.Context) (any, error) {
		return h.Store.GetChapter(ctx, id)
	})
}

func (h *NovelsHandler) UpdateChapter(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req chapterRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.WordCount != nil && *req.WordCount < 0 {
		return apperr.Validation("word_count must not be negative")
	}

	c, err := h.Store.UpdateChapter(r.Context(), id, store.ChapterUpdate{
		Title:       req.Title,
		Content:     req.Content,
		Description: req.Description,
		WordCount:   req.WordCount,
		Status:      req.Status,
		OrderIndex:  req.OrderIndex,
	})
	if err != nil {
		return err
	}
	h.invalidate(r)
	writeSuccess(w, http.StatusOK, "chapter updated", c)
	return nil
}

func (h *NovelsHandler) DeleteChapter(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := h.Store.DeleteChapter(r.Context(), id); err != nil {
		return err
	}
	h.invalidate(r)
	writeSuccess(w, http.StatusOK, "chapter deleted", map[string]any{"id": id})
	return nil
}

// checkExtraData rejects extra_data that is present but not a JSON object.
func checkExtraData(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return apperr.Validation("extra_data must be a JSON object")
	}
	return nil
}

// invalidate drops cached novel and chapter reads after a write.
func (h *NovelsHandler) invalidate(r *http.Request) {
	ctx := r.Context()
	h.Cache.Invalidate(ctx, config.SegmentAPI)
	logging.L(ctx).Debug("novel caches invalidated", zap.String("segment", config.SegmentAPI))
}
