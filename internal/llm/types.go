package llm

import (
	"context"
)

// Task states reported by the upstream task endpoint. Any other value is
// treated as still running.
const (
	TaskPending   = "PENDING"
	TaskRunning   = "RUNNING"
	TaskSucceeded = "SUCCEEDED"
	TaskFailed    = "FAILED"
	TaskCanceled  = "CANCELED"
)

// Relay is an upstream text response passed back to the caller unchanged.
type Relay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type ImageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	N      int    `json:"n,omitempty"`
}

type ImageResult struct {
	URL      string `json:"url"`
	TaskID   string `json:"task_id"`
	Model    string `json:"model"`
	Attempts int    `json:"attempts"`
}

type Client interface {
	// ProxyText forwards a text generation payload unmodified.
	ProxyText(ctx context.Context, payload []byte) (*Relay, error)
	// GenerateImage submits an async image task and polls it to completion.
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}
