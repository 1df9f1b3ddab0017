package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoContent is returned by Result.Decode when the server answered 204.
var ErrNoContent = errors.New("apiclient: no content")

// APIError is a non-2xx response from the clinic API. Callers can use
// errors.As to inspect the status:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound { ... }
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status belongs to the 5xx class.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// IsClientError reports whether err is a 4xx APIError.
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// IsServerError reports whether err is a 5xx APIError.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 500
}

// StatusCode returns the HTTP status carried by err, or 0 for transport errors.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// newAPIError extracts the server-provided message. The API answers with
// {"detail": ...}; {"error": ...} and {"message": ...} are accepted too.
func newAPIError(status int, body []byte) *APIError {
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	msg := ""
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case len(parsed.Detail) > 0:
			var s string
			if json.Unmarshal(parsed.Detail, &s) == nil {
				msg = s
			} else {
				msg = string(parsed.Detail)
			}
		case parsed.Error != "":
			msg = parsed.Error
		case parsed.Message != "":
			msg = parsed.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
