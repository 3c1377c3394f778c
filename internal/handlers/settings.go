package handlers

import (
	"context"
	"net/http"
	"time"

	"scriptdesk/internal/cache"
	"scriptdesk/internal/config"
	"scriptdesk/internal/settings"
)

// apiKeyCheckTTL bounds how long a key changed outside this process (the
// apikey command, another instance sharing Redis) can be reported stale.
const apiKeyCheckTTL = 30 * time.Second

// SettingsHandler serves /api/settings/apikey.
type SettingsHandler struct {
	Store settings.Store
	Cache cache.Cache
}

func NewSettingsHandler(s settings.Store, c cache.Cache) *SettingsHandler {
	return &SettingsHandler{Store: s, Cache: c}
}

// CheckAPIKey handles GET /api/settings/apikey/check. The key itself is
// never returned.
func (h *SettingsHandler) CheckAPIKey(w http.ResponseWriter, r *http.Request) error {
	return cachedRead(w, r, h.Cache, config.SegmentAPI, apiKeyCheckTTL, "api key status", func(ctx context.Context) (any, error) {
		return settings.CheckAPIKey(ctx, h.Store)
	})
}

// SaveAPIKey handles POST /api/settings/apikey; the body may use either
// "apikey" or "api_key".
func (h *SettingsHandler) SaveAPIKey(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		APIKey    string `json:"apikey"`
		APIKeyAlt string `json:"api_key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	key := req.APIKey
	if key == "" {
		key = req.APIKeyAlt
	}
	if err := settings.SaveAPIKey(r.Context(), h.Store, key); err != nil {
		return err
	}
	h.Cache.Invalidate(r.Context(), config.SegmentAPI)

	writeSuccess(w, http.StatusOK, "api key saved", nil)
	return nil
}
