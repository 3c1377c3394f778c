package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"scriptdesk/internal/llm"
	"scriptdesk/pkg/logging"
)

// ProxyHandler serves /api/proxy and /api/proxy/image. Neither route is
// cached; every call reaches the upstream with the credential read fresh.
type ProxyHandler struct {
	Client llm.Client
}

func NewProxyHandler(client llm.Client) *ProxyHandler {
	return &ProxyHandler{Client: client}
}

// Text handles POST /api/proxy.
func (h *ProxyHandler) Text(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	start := time.Now()

	body, err := readBody(r)
	if err != nil {
		return err
	}

	relay, err := h.Client.ProxyText(ctx, body)
	if err != nil {
		return err
	}

	logging.L(ctx).Info("proxy_text",
		zap.Int("upstream_status", relay.StatusCode),
		zap.Int("response_bytes", len(relay.Body)),
		zap.Float64("total_latency_ms", sinceMs(start)),
	)

	if relay.ContentType != "" {
		w.Header().Set("Content-Type", relay.ContentType)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(relay.StatusCode)
	_, _ = w.Write(relay.Body)
	return nil
}

// Image handles POST /api/proxy/image.
func (h *ProxyHandler) Image(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	start := time.Now()

	var req llm.ImageRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	res, err := h.Client.GenerateImage(ctx, req)
	if err != nil {
		return err
	}

	logging.L(ctx).Info("proxy_image",
		zap.String("model", res.Model),
		zap.Int("attempts", res.Attempts),
		zap.Float64("total_latency_ms", sinceMs(start)),
	)
	writeJSON(w, http.StatusOK, res)
	return nil
}
