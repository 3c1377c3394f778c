package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"scriptdesk/internal/cache"
)

// cachedRead answers a GET from segment, keyed by path and sorted query, and
// calls load on a miss. Only successful loads are stored.
func cachedRead(w http.ResponseWriter, r *http.Request, c cache.Cache, segment string, ttl time.Duration, message string, load func(ctx context.Context) (any, error)) error {
	key := cache.BuildQueryKey(r.URL.Path, r.URL.Query()).String()
	data, hit, err := c.GetOrLoad(r.Context(), segment, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return err
	}

	setCacheHeader(w, hit)
	writeSuccess(w, http.StatusOK, message, json.RawMessage(data))
	return nil
}

func setCacheHeader(w http.ResponseWriter, hit bool) {
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
}
