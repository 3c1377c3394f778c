package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"scriptdesk/internal/apperr"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "scripts.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, newSQLiteStore(t))
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("SCRIPTDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set SCRIPTDESK_TEST_POSTGRES_DSN to run Postgres store integration tests")
	}
	s, err := NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	reset := func() {
		for _, table := range []string{"chapters", "novels", "scripts", "settings"} {
			_, _ = s.db.Exec("DELETE FROM " + table)
		}
	}
	reset()
	t.Cleanup(func() {
		reset()
		_ = s.Close()
	})
	runStoreContract(t, s)
}

func runStoreContract(t *testing.T, s *Store) {
	t.Run("settings", func(t *testing.T) { testSettings(t, s) })
	t.Run("scripts", func(t *testing.T) { testScripts(t, s) })
	t.Run("novels", func(t *testing.T) { testNovelsAndChapters(t, s) })
}

func testSettings(t *testing.T, s *Store) {
	ctx := context.Background()
	if _, ok, err := s.GetSetting(ctx, "apikey"); err != nil || ok {
		t.Fatalf("expected missing setting, ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting(ctx, "apikey", "sk-first-key"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := s.SetSetting(ctx, "apikey", "sk-second-key"); err != nil {
		t.Fatalf("overwrite setting: %v", err)
	}
	v, ok, err := s.GetSetting(ctx, "apikey")
	if err != nil || !ok || v != "sk-second-key" {
		t.Fatalf("unexpected setting value=%q ok=%v err=%v", v, ok, err)
	}
}

func testScripts(t *testing.T, s *Store) {
	ctx := context.Background()
	seed := []Script{
		{Theme: "coffee", Type: "ad", Platform: "douyin", Content: "first script body"},
		{Theme: "tea", Type: "ad", Platform: "bilibili", Content: "second script body", Metadata: map[string]any{"tone": "calm"}},
		{Theme: "travel", Type: "vlog", Platform: "douyin", Content: "third script body", IsFavorite: true},
	}
	for i := range seed {
		if err := s.CreateScript(ctx, &seed[i]); err != nil {
			t.Fatalf("create script: %v", err)
		}
		if seed[i].ID == 0 {
			t.Fatalf("expected id to be assigned")
		}
	}

	all, err := s.ListScripts(ctx, ListOptions{Limit: 50})
	if err != nil {
		t.Fatalf("list scripts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 scripts, got %d", len(all))
	}
	if all[0].ID != seed[2].ID {
		t.Fatalf("expected newest first, got id %d", all[0].ID)
	}

	limited, err := s.ListScripts(ctx, ListOptions{Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 scripts with limit, got %d err=%v", len(limited), err)
	}

	favs, err := s.ListScripts(ctx, ListOptions{Limit: 50, FavoritesOnly: true})
	if err != nil {
		t.Fatalf("list favorites: %v", err)
	}
	if len(favs) != 1 || favs[0].Theme != "travel" {
		t.Fatalf("unexpected favorites: %+v", favs)
	}

	got, err := s.GetScript(ctx, seed[1].ID)
	if err != nil {
		t.Fatalf("get script: %v", err)
	}
	if got.Metadata["tone"] != "calm" {
		t.Fatalf("metadata not round-tripped: %+v", got.Metadata)
	}

	theme := "green tea"
	updated, err := s.UpdateScript(ctx, seed[1].ID, ScriptUpdate{Theme: &theme})
	if err != nil {
		t.Fatalf("update script: %v", err)
	}
	if updated.Theme != "green tea" || updated.Content != "second script body" {
		t.Fatalf("partial update changed wrong fields: %+v", updated)
	}
	if _, err := s.UpdateScript(ctx, seed[1].ID, ScriptUpdate{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for empty update, got %v", err)
	}
	if _, err := s.UpdateScript(ctx, 99999, ScriptUpdate{Theme: &theme}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	fav, err := s.ToggleFavorite(ctx, seed[0].ID)
	if err != nil || !fav {
		t.Fatalf("expected favorite on, fav=%v err=%v", fav, err)
	}
	fav, err = s.ToggleFavorite(ctx, seed[0].ID)
	if err != nil || fav {
		t.Fatalf("expected favorite off, fav=%v err=%v", fav, err)
	}
	if _, err := s.ToggleFavorite(ctx, 99999); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	stats, err := s.ScriptStats(ctx)
	if err != nil {
		t.Fatalf("script stats: %v", err)
	}
	if stats.TotalScripts != 3 || stats.FavoriteScripts != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.TypeDistribution["ad"] != 2 || stats.TypeDistribution["vlog"] != 1 {
		t.Fatalf("unexpected type distribution: %+v", stats.TypeDistribution)
	}
	if stats.PlatformDistribution["douyin"] != 2 || stats.PlatformDistribution["bilibili"] != 1 {
		t.Fatalf("unexpected platform distribution: %+v", stats.PlatformDistribution)
	}

	if err := s.DeleteScript(ctx, seed[0].ID); err != nil {
		t.Fatalf("delete script: %v", err)
	}
	if err := s.DeleteScript(ctx, seed[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if _, err := s.GetScript(ctx, seed[0].ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func testNovelsAndChapters(t *testing.T, s *Store) {
	ctx := context.Background()
	n := &Novel{Title: "Night Harbor", Genre: "mystery", ExtraData: json.RawMessage(`{"outline":"act one"}`)}
	if err := s.CreateNovel(ctx, n); err != nil {
		t.Fatalf("create novel: %v", err)
	}
	if n.Status != NovelStatusOngoing {
		t.Fatalf("expected default status %q, got %q", NovelStatusOngoing, n.Status)
	}

	second := &Chapter{NovelID: n.ID, Title: "Two", Content: "第二章", OrderIndex: 2}
	first := &Chapter{NovelID: n.ID, Title: "One", Content: "hello", OrderIndex: 1}
	for _, c := range []*Chapter{second, first} {
		if err := s.CreateChapter(ctx, c); err != nil {
			t.Fatalf("create chapter: %v", err)
		}
	}
	if second.WordCount != 3 {
		t.Fatalf("expected rune word count 3, got %d", second.WordCount)
	}
	if second.Status != ChapterStatusDraft {
		t.Fatalf("expected draft status, got %q", second.Status)
	}

	chapters, err := s.ListChapters(ctx, n.ID)
	if err != nil {
		t.Fatalf("list chapters: %v", err)
	}
	if len(chapters) != 2 || chapters[0].Title != "One" || chapters[1].Title != "Two" {
		t.Fatalf("chapters not in order: %+v", chapters)
	}

	content := "rewritten"
	c, err := s.UpdateChapter(ctx, first.ID, ChapterUpdate{Content: &content})
	if err != nil {
		t.Fatalf("update chapter: %v", err)
	}
	if c.WordCount != len(content) {
		t.Fatalf("expected word count recomputed, got %d", c.WordCount)
	}

	if err := s.CreateChapter(ctx, &Chapter{NovelID: 99999, Title: "orphan"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for missing novel, got %v", err)
	}

	summary := "they met at the pier"
	got, err := s.UpdateNovel(ctx, n.ID, NovelUpdate{RollingSummary: &summary})
	if err != nil {
		t.Fatalf("update novel: %v", err)
	}
	if got.RollingSummary != summary || got.Title != "Night Harbor" {
		t.Fatalf("unexpected novel after update: %+v", got)
	}
	if string(got.ExtraData) != `{"outline":"act one"}` {
		t.Fatalf("extra data not round-tripped: %s", got.ExtraData)
	}

	novels, err := s.ListNovels(ctx)
	if err != nil || len(novels) != 1 {
		t.Fatalf("list novels: %d err=%v", len(novels), err)
	}

	if err := s.DeleteChapter(ctx, second.ID); err != nil {
		t.Fatalf("delete chapter: %v", err)
	}
	if err := s.DeleteNovel(ctx, n.ID); err != nil {
		t.Fatalf("delete novel: %v", err)
	}
	if _, err := s.GetChapter(ctx, first.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected chapters removed with novel, got %v", err)
	}
	if err := s.DeleteNovel(ctx, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestBindRewritesPlaceholdersForPostgres(t *testing.T) {
	s := &Store{dialect: dialectPostgres}
	got := s.bind(`UPDATE t SET a = ?, b = ? WHERE id = ?`)
	want := `UPDATE t SET a = $1, b = $2 WHERE id = $3`
	if got != want {
		t.Fatalf("bind: got %q want %q", got, want)
	}
	sqlite := &Store{dialect: dialectSQLite}
	if q := sqlite.bind(`SELECT ?`); q != `SELECT ?` {
		t.Fatalf("sqlite bind should not rewrite, got %q", q)
	}
}
