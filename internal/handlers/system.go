package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"scriptdesk/internal/apperr"
	"scriptdesk/internal/cache"
	"scriptdesk/internal/version"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves info, health and cache administration.
type SystemHandler struct {
	Cache cache.Cache
	// Checks are pinged by Health, keyed by the name reported back.
	Checks map[string]Pinger
	Port   int
}

func NewSystemHandler(c cache.Cache, checks map[string]Pinger, port int) *SystemHandler {
	return &SystemHandler{Cache: c, Checks: checks, Port: port}
}

// Info handles GET /api/info.
func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) error {
	writeSuccess(w, http.StatusOK, "server info", map[string]any{
		"version": version.String(),
		"port":    h.Port,
		"status":  "online",
	})
	return nil
}

// Health handles GET /api/health and /healthz.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]any, len(h.Checks))
	for name, p := range h.Checks {
		if err := p.Ping(ctx); err != nil {
			return apperr.Connectivity(name+" unavailable", err).
				WithDetails(map[string]any{"check": name})
		}
		status[name] = "ok"
	}
	writeSuccess(w, http.StatusOK, "healthy", status)
	return nil
}

// CacheStats handles GET /api/cache/stats.
func (h *SystemHandler) CacheStats(w http.ResponseWriter, r *http.Request) error {
	writeSuccess(w, http.StatusOK, "cache stats", h.Cache.AllStats())
	return nil
}

// InvalidateCache handles POST /api/cache/{segment}/invalidate.
func (h *SystemHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) error {
	segment := chi.URLParam(r, "segment")
	if _, ok := h.Cache.Stats(segment); !ok {
		return apperr.NotFound("unknown cache segment " + segment)
	}
	h.Cache.Invalidate(r.Context(), segment)
	writeSuccess(w, http.StatusOK, "cache invalidated", map[string]any{"segment": segment})
	return nil
}
