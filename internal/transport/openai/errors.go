package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/questor-ai/questor/internal/retry"
)

// parseAPIError extracts a human-readable error from the API response and
// wraps it with the given sentinel for correct 502 mapping. Rate limits,
// server-side failures and network errors are additionally marked
// transient so the retryer picks them up.
func parseAPIError(err error, op string, sentinel error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
		wrapped := fmt.Errorf("%s API error %d: %s: %w", op, reqErr.HTTPStatusCode, msg, sentinel)
		if retryableStatus(reqErr.HTTPStatusCode) {
			return retry.Transient(wrapped)
		}
		return wrapped
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("%s API error %d: %s: %w", op, apiErr.HTTPStatusCode, apiErr.Message, sentinel)
		if retryableStatus(apiErr.HTTPStatusCode) {
			return retry.Transient(wrapped)
		}
		return wrapped
	}

	// No structured API error means the request never got a response
	// (DNS, connect, timeout). Worth another attempt.
	return retry.Transient(fmt.Errorf("%s request failed: %v: %w", op, err, sentinel))
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
