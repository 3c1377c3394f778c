package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"scriptdesk/internal/apperr"
	"scriptdesk/internal/metrics"
	"scriptdesk/internal/settings"
)

// GenerateImage runs SUBMITTING -> POLLING -> SUCCEEDED|FAILED|TIMED_OUT.
// The upstream task is never cancelled, even when ctx is.
func (c *client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	start := time.Now()

	res, err := c.generateImage(ctx, req)
	outcome := "succeeded"
	switch {
	case err == nil:
	case apperr.KindOf(err) == apperr.KindTaskFailed:
		outcome = "failed"
	case apperr.KindOf(err) == apperr.KindTaskTimeout:
		outcome = "timed_out"
	default:
		outcome = "error"
	}
	metrics.ImageTasksTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		c.logger.Warn("image generation ended without result",
			zap.String("outcome", outcome),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	c.logger.Info("image generation completed",
		zap.String("task_id", res.TaskID),
		zap.String("model", res.Model),
		zap.Int("attempts", res.Attempts),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (c *client) generateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, apperr.Validation("prompt is required")
	}
	if req.Size == "" {
		req.Size = c.cfg.ImageSize
	}
	if req.N <= 0 {
		req.N = 1
	}
	key, err := settings.APIKey(ctx, c.creds)
	if err != nil {
		return nil, err
	}

	// SUBMITTING
	model := c.cfg.PrimaryImageModel
	taskID, status, err := c.submitImage(ctx, key, model, req)
	if err != nil && (status == http.StatusBadRequest || status == http.StatusForbidden) &&
		c.cfg.FallbackImageModel != "" && c.cfg.FallbackImageModel != model {
		c.logger.Warn("primary image model rejected, falling back",
			zap.String("model", model),
			zap.String("fallback", c.cfg.FallbackImageModel),
			zap.Int("status", status),
		)
		metrics.ImageFallbacksTotal.Inc()
		model = c.cfg.FallbackImageModel
		taskID, _, err = c.submitImage(ctx, key, model, req)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("image task submitted",
		zap.String("task_id", taskID),
		zap.String("model", model),
	)

	// POLLING
	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		if err := c.waitPoll(ctx); err != nil {
			return nil, err
		}

		task, err := c.pollTask(ctx, key, taskID)
		if err != nil {
			return nil, err
		}

		switch task.Output.TaskStatus {
		case TaskSucceeded:
			url := task.firstURL()
			if url == "" {
				return nil, apperr.Upstream("task succeeded without a result url", nil).
					WithDetails(map[string]any{"task_id": taskID})
			}
			return &ImageResult{URL: url, TaskID: taskID, Model: model, Attempts: attempt}, nil
		case TaskFailed, TaskCanceled:
			msg := task.Output.Message
			if msg == "" {
				msg = "unknown error"
			}
			return nil, apperr.TaskFailed("image task failed: "+msg).
				WithDetails(map[string]any{"task_id": taskID, "task_status": task.Output.TaskStatus})
		default:
			c.logger.Debug("image task pending",
				zap.String("task_id", taskID),
				zap.String("task_status", task.Output.TaskStatus),
				zap.Int("attempt", attempt),
			)
		}
	}

	return nil, apperr.TaskTimeout(fmt.Sprintf("image task did not finish after %d polls", c.cfg.MaxPollAttempts)).
		WithDetails(map[string]any{"task_id": taskID})
}

// submitImage posts one async task. The returned status is the upstream HTTP
// status when a response was received, 0 otherwise.
func (c *client) submitImage(parent context.Context, key, model string, in ImageRequest) (string, int, error) {
	var p providerImageRequest
	p.Model = model
	p.Input.Prompt = in.Prompt
	p.Parameters.Size = in.Size
	p.Parameters.N = in.N

	bodyBytes, err := json.Marshal(p)
	if err != nil {
		return "", 0, fmt.Errorf("marshal image request: %w", err)
	}

	ctx, cancel := context.WithTimeout(parent, c.cfg.UpstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ImageURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", 0, apperr.Upstream("build image request", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DashScope-Async", "enable")

	resp, body, err := c.do(parent, "image_submit", "image submission", req)
	if err != nil {
		return "", 0, err
	}
	if !isSuccess(resp.StatusCode) {
		return "", resp.StatusCode, upstreamStatusError("image submission", resp.StatusCode, body)
	}

	var task providerTaskResponse
	if err := json.Unmarshal(body, &task); err != nil {
		return "", resp.StatusCode, apperr.Upstream("decode image submission response", err)
	}
	if task.Output.TaskID == "" {
		return "", resp.StatusCode, apperr.Upstream("image submission returned no task id", nil)
	}
	return task.Output.TaskID, resp.StatusCode, nil
}

func (c *client) pollTask(parent context.Context, key, taskID string) (*providerTaskResponse, error) {
	ctx, cancel := context.WithTimeout(parent, c.cfg.UpstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.TaskURL+"/"+taskID, nil)
	if err != nil {
		return nil, apperr.Upstream("build task request", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, body, err := c.do(parent, "image_poll", "task poll", req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, upstreamStatusError("task poll", resp.StatusCode, body)
	}

	var task providerTaskResponse
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, apperr.Upstream("decode task response", err)
	}
	return &task, nil
}

// waitPoll sleeps one PollInterval, returning early if ctx ends.
func (c *client) waitPoll(ctx context.Context) error {
	t := time.NewTimer(c.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
