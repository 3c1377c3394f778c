package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"scriptdesk/internal/apperr"
	"scriptdesk/internal/cache"
	"scriptdesk/internal/config"
	"scriptdesk/internal/store"
	"scriptdesk/pkg/logging"
)

const (
	defaultScriptLimit = 50
	maxScriptLimit     = 100
	historyLimit       = 100
)

// ScriptStore is the persistence used by ScriptsHandler.
type ScriptStore interface {
	CreateScript(ctx context.Context, sc *store.Script) error
	GetScript(ctx context.Context, id int64) (*store.Script, error)
	ListScripts(ctx context.Context, opts store.ListOptions) ([]store.Script, error)
	UpdateScript(ctx context.Context, id int64, u store.ScriptUpdate) (*store.Script, error)
	DeleteScript(ctx context.Context, id int64) error
	ToggleFavorite(ctx context.Context, id int64) (bool, error)
	ScriptStats(ctx context.Context) (*store.ScriptStats, error)
}

// ScriptsHandler serves /api/scripts, /api/history and /api/stats. Reads go through the
// scripts and stats segments; every write invalidates both.
type ScriptsHandler struct {
	Store ScriptStore
	Cache cache.Cache
}

func NewScriptsHandler(s ScriptStore, c cache.Cache) *ScriptsHandler {
	return &ScriptsHandler{Store: s, Cache: c}
}

type scriptRequest struct {
	Theme      *string        `json:"theme"`
	Type       *string        `json:"script_type"`
	Platform   *string        `json:"platform"`
	Content    *string        `json:"content"`
	IsFavorite *bool          `json:"is_favorite"`
	Metadata   map[string]any `json:"metadata"`
}

type fieldLimit struct {
	name     string
	min, max int
}

var (
	themeLimit    = fieldLimit{"theme", 1, 100}
	typeLimit     = fieldLimit{"script_type", 1, 50}
	platformLimit = fieldLimit{"platform", 1, 50}
	contentLimit  = fieldLimit{"content", 10, 50000}
)

func (l fieldLimit) check(v string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	if n < l.min || n > l.max {
		return apperr.Validation(fmt.Sprintf("%s must be %d-%d characters", l.name, l.min, l.max)).
			WithDetails(map[string]any{"field": l.name, "length": n})
	}
	return nil
}

// List handles GET /api/scripts?limit=N&favorites=true.
func (h *ScriptsHandler) List(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	limit := defaultScriptLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxScriptLimit {
			return apperr.Validation(fmt.Sprintf("limit must be between 1 and %d", maxScriptLimit))
		}
		limit = n
	}
	favorites := false
	if raw := q.Get("favorites"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return apperr.Validation("favorites must be true or false")
		}
		favorites = b
	}

	key := cache.BuildQueryKey(r.URL.Path, q).String()
	data, hit, err := h.Cache.GetOrLoad(r.Context(), config.SegmentScripts, key, 0, func(ctx context.Context) ([]byte, error) {
		scripts, err := h.Store.ListScripts(ctx, store.ListOptions{Limit: limit, FavoritesOnly: favorites})
		if err != nil {
			return nil, err
		}
		return json.Marshal(scripts)
	})
	if err != nil {
		return err
	}

	setCacheHeader(w, hit)
	writeSuccess(w, http.StatusOK, "scripts loaded", json.RawMessage(data))
	return nil
}

// Create handles POST /api/scripts.
func (h *ScriptsHandler) Create(w http.ResponseWriter, r *http.Request) error {
	var req scriptRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	sc := store.Script{Metadata: req.Metadata}
	for _, f := range []struct {
		v     *string
		limit fieldLimit
		dst   *string
	}{
		{req.Theme, themeLimit, &sc.Theme},
		{req.Type, typeLimit, &sc.Type},
		{req.Platform, platformLimit, &sc.Platform},
		{req.Content, contentLimit, &sc.Content},
	} {
		if f.v == nil {
			return apperr.Validation(f.limit.name + " is required")
		}
		if err := f.limit.check(*f.v); err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(*f.v)
	}
	if req.IsFavorite != nil {
		sc.IsFavorite = *req.IsFavorite
	}

	if err := h.Store.CreateScript(r.Context(), &sc); err != nil {
		return err
	}
	h.invalidate(r)

	writeSuccess(w, http.StatusCreated, "script saved", sc)
	return nil
}

// Update handles PUT /api/scripts/{id} with a partial body.
func (h *ScriptsHandler) Update(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	var req scriptRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	u := store.ScriptUpdate{IsFavorite: req.IsFavorite, Metadata: req.Metadata}
	for _, f := range []struct {
		v     *string
		limit fieldLimit
		dst   **string
	}{
		{req.Theme, themeLimit, &u.Theme},
		{req.Type, typeLimit, &u.Type},
		{req.Platform, platformLimit, &u.Platform},
		{req.Content, contentLimit, &u.Content},
	} {
		if f.v == nil {
			continue
		}
		if err := f.limit.check(*f.v); err != nil {
			return err
		}
		v := strings.TrimSpace(*f.v)
		*f.dst = &v
	}

	sc, err := h.Store.UpdateScript(r.Context(), id, u)
	if err != nil {
		return err
	}
	h.invalidate(r)

	writeSuccess(w, http.StatusOK, "script updated", sc)
	return nil
}

// Delete handles DELETE /api/scripts/{id}.
func (h *ScriptsHandler) Delete(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	if err := h.Store.DeleteScript(r.Context(), id); err != nil {
		return err
	}
	h.invalidate(r)

	writeSuccess(w, http.StatusOK, "script deleted", map[string]any{"id": id})
	return nil
}

// ToggleFavorite handles POST /api/scripts/{id}/favorite.
func (h *ScriptsHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) error {
	id, err := pathID(r, "id")
	if err != nil {
		return err
	}
	fav, err := h.Store.ToggleFavorite(r.Context(), id)
	if err != nil {
		return err
	}
	h.invalidate(r)

	writeSuccess(w, http.StatusOK, "favorite updated", map[string]any{"id": id, "is_favorite": fav})
	return nil
}

// historyItem is one row of GET /api/history.
type historyItem struct {
	ID         int64     `json:"id"`
	Theme      string    `json:"theme"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsFavorite bool      `json:"is_favorite"`
	Type       string    `json:"script_type"`
	Platform   string    `json:"platform"`
}

// History handles GET /api/history: the latest scripts as a bare JSON array,
// newest first.
func (h *ScriptsHandler) History(w http.ResponseWriter, r *http.Request) error {
	key := cache.BuildQueryKey(r.URL.Path, nil).String()
	data, hit, err := h.Cache.GetOrLoad(r.Context(), config.SegmentScripts, key, 0, func(ctx context.Context) ([]byte, error) {
		scripts, err := h.Store.ListScripts(ctx, store.ListOptions{Limit: historyLimit})
		if err != nil {
			return nil, err
		}
		items := make([]historyItem, 0, len(scripts))
		for _, sc := range scripts {
			items = append(items, historyItem{
				ID:         sc.ID,
				Theme:      sc.Theme,
				Content:    sc.Content,
				CreatedAt:  sc.CreatedAt,
				IsFavorite: sc.IsFavorite,
				Type:       sc.Type,
				Platform:   sc.Platform,
			})
		}
		return json.Marshal(items)
	})
	if err != nil {
		return err
	}

	setCacheHeader(w, hit)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return nil
}

// Stats handles GET /api/stats.
func (h *ScriptsHandler) Stats(w http.ResponseWriter, r *http.Request) error {
	key := cache.BuildQueryKey(r.URL.Path, nil).String()
	data, hit, err := h.Cache.GetOrLoad(r.Context(), config.SegmentStats, key, 0, func(ctx context.Context) ([]byte, error) {
		st, err := h.Store.ScriptStats(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(st)
	})
	if err != nil {
		return err
	}

	setCacheHeader(w, hit)
	writeSuccess(w, http.StatusOK, "stats loaded", json.RawMessage(data))
	return nil
}

// invalidate drops every cached list and stats response after a write.
func (h *ScriptsHandler) invalidate(r *http.Request) {
	ctx := r.Context()
	h.Cache.Invalidate(ctx, config.SegmentScripts)
	h.Cache.Invalidate(ctx, config.SegmentStats)
	logging.L(ctx).Debug("script caches invalidated",
		zap.Strings("segments", []string{config.SegmentScripts, config.SegmentStats}),
	)
}
