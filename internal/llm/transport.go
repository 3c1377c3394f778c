package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"scriptdesk/internal/apperr"
	"scriptdesk/internal/metrics"
)

// maxUpstreamBody caps how much of an upstream response is read.
const maxUpstreamBody = 32 * 1024 * 1024

// classifyTransportError maps an error from http.Client.Do to an apperr kind.
// The caller's own cancellation is returned as is.
func classifyTransportError(parent context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout(op+" timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.Timeout(op+" timed out", err)
	}
	if isConnectivityError(err) {
		return apperr.Connectivity("upstream unreachable", err)
	}
	return apperr.Upstream(op+" failed", err)
}

// isConnectivityError reports dial, DNS and connection-level failures.
func isConnectivityError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write" {
			return true
		}
	}

	// Wrapped errors sometimes lose their type.
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"temporary failure",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// do sends req and reads the whole body, recording the outcome under endpoint.
func (c *client) do(parent context.Context, endpoint, op string, req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, nil, classifyTransportError(parent, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return nil, nil, classifyTransportError(parent, op, err)
	}
	return resp, body, nil
}

// upstreamStatusError builds an UpstreamError for a non-2xx response,
// using the provider's error message when the body has one.
func upstreamStatusError(op string, status int, body []byte) error {
	msg := fmt.Sprintf("%s returned status %d", op, status)
	details := map[string]any{"status": status}

	var perr providerErrorResponse
	if err := json.Unmarshal(body, &perr); err == nil && perr.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, perr.Message)
		if perr.Code != "" {
			details["code"] = perr.Code
		}
	}
	return apperr.Upstream(msg, nil).WithDetails(details)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
