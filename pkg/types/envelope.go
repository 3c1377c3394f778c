// Package types holds the JSON shapes shared by the HTTP layer.
package types

import "time"

// Envelope wraps every JSON API response.
type Envelope struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Data      any            `json:"data,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func Success(message string, data any) Envelope {
	return Envelope{
		Success:   true,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
}

func Failure(message string, details map[string]any) Envelope {
	return Envelope{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   details,
	}
}
