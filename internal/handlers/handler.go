// Package handlers implements the HTTP API. Handlers return errors and
// Handle turns them into the JSON envelope.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scriptdesk/internal/apperr"
	"scriptdesk/pkg/logging"
	"scriptdesk/pkg/types"
)

// HandlerFunc is an http.HandlerFunc that reports failure as an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Handle adapts fn, mapping any returned error to a status code and envelope.
func Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		status := apperr.HTTPStatus(err)
		logger := logging.L(r.Context())
		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindNotFound:
			logger.Warn("request rejected", zap.Int("status", status), zap.Error(err))
		default:
			logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		}

		writeJSON(w, status, types.Failure(apperr.PublicMessage(err), apperr.DetailsOf(err)))
	}
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, types.Success(message, data))
}

// readBody reads the whole request body.
func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("request body too large")
		}
		return nil, apperr.Validation("could not read request body")
	}
	return b, nil
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	b, err := readBody(r)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return apperr.Validation("request body is empty")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// sinceMs is the elapsed time in fractional milliseconds, for *_ms log fields.
func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
