package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"scriptdesk/internal/apperr"
	"scriptdesk/internal/settings"
)

func (c *client) ProxyText(parentCtx context.Context, payload []byte) (*Relay, error) {
	start := time.Now()

	if err := validateTextPayload(payload); err != nil {
		return nil, err
	}
	key, err := settings.APIKey(parentCtx, c.creds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TextURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Upstream("build text request", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DashScope-Sync", "enable")

	resp, body, err := c.do(parentCtx, "text", "text generation", req)
	if err != nil {
		c.logger.Error("text proxy failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	relay := &Relay{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}

	if !isSuccess(resp.StatusCode) {
		c.logger.Warn("text upstream returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
	} else {
		c.logger.Info("text proxy completed",
			zap.Int("status", resp.StatusCode),
			zap.Int("bytes", len(body)),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return relay, nil
}

// validateTextPayload checks, in order: non-empty body, model, input.
func validateTextPayload(payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return apperr.Validation("request body is empty")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return apperr.Validation("request body must be a JSON object")
	}
	if len(fields) == 0 {
		return apperr.Validation("request body is empty")
	}
	if !present(fields["model"]) {
		return apperr.Validation("model is required")
	}
	if !present(fields["input"]) {
		return apperr.Validation("input is required")
	}
	return nil
}

func present(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) > 0 && !bytes.Equal(v, []byte("null")) && !bytes.Equal(v, []byte(`""`))
}
