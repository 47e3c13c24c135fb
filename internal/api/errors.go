package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Auth failures raised before any network I/O. Both also cover the
// server-reported unauthorized case after the token has been erased.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired, please login again")
	ErrUploadTimeout    = errors.New("upload timed out")
)

// ValidationError is a local input failure. It is raised synchronously and
// never reaches the network layer.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// APIError is a non-success HTTP response reduced to a single message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// NetworkError wraps a transport failure where no response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network unavailable: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// normalizeError extracts a human-readable message from the known server
// error shapes, in priority order: error (string or field map), detail,
// message, then a generic fallback carrying the status code.
func normalizeError(status int, body []byte) *APIError {
	msg := fmt.Sprintf("request failed with status %d", status)

	var payload map[string]json.RawMessage
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if extracted := extractMessage(payload); extracted != "" {
			msg = extracted
		}
	}
	return &APIError{StatusCode: status, Message: msg}
}

func extractMessage(payload map[string]json.RawMessage) string {
	if raw, ok := payload["error"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		// DRF-style field map: {"error": {"phone": ["msg", ...]}}
		var fields map[string][]string
		if json.Unmarshal(raw, &fields) == nil && len(fields) > 0 {
			return joinFieldErrors(fields)
		}
	}
	for _, key := range []string{"detail", "message"} {
		if raw, ok := payload[key]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				return s
			}
		}
	}
	return ""
}

func joinFieldErrors(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(fields[k]) == 0 {
			continue
		}
		parts = append(parts, k+": "+strings.Join(fields[k], " "))
	}
	return strings.Join(parts, "; ")
}
