package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("not found")
	ErrEmptyID  = errors.New("empty id")
)

// APIError is a non-2xx response from the remote service.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("assistant API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("assistant API error (status %d): %s", e.StatusCode, e.Message)
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsFatal reports whether err cannot succeed on retry with other inputs:
// bad credentials, missing permissions or exhausted quota.
func IsFatal(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return apiErr.Code == "invalid_api_key" || apiErr.Code == "insufficient_quota"
}

// parseAPIError builds an APIError from a response body of the form
// {"error": {"message": ..., "type": ..., "code": ...}}.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		apiErr.Message = string(body)
		return apiErr
	}
	apiErr.Message = envelope.Error.Message
	apiErr.Type = envelope.Error.Type
	if code, ok := envelope.Error.Code.(string); ok {
		apiErr.Code = code
	}
	return apiErr
}
