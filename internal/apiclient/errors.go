package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNetwork matches every NetworkError via errors.Is.
var ErrNetwork = errors.New("network failure")

// NetworkError reports a request that produced no HTTP response at all:
// connection refused, DNS failure, timeout, cancelled context.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// StatusError reports a response with a status of 400 or above.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: request failed with status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: request failed (%d): %s", e.Method, e.Path, e.Status, e.Message)
}

// Unauthorized reports whether the server rejected the credential.
func (e *StatusError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// extractMessage pulls a human readable message out of an error body. The
// API answers with {"statusCode":..., "message": string | []string,
// "error": string}; anything else is returned as trimmed text.
func extractMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}

	if len(payload.Message) > 0 {
		var single string
		if err := json.Unmarshal(payload.Message, &single); err == nil && single != "" {
			return strings.TrimSpace(single)
		}
		var many []string
		if err := json.Unmarshal(payload.Message, &many); err == nil && len(many) > 0 {
			return strings.TrimSpace(strings.Join(many, "; "))
		}
	}
	return strings.TrimSpace(payload.Error)
}
