package apiclient

import (
	"errors"
	"fmt"
)

// ErrNetwork wraps transport-level failures: no response received, timeout,
// connection refused. The offline gateway's API-tier fallback applies to this
// class only.
var ErrNetwork = errors.New("network error")

// ErrSessionExpired is returned when authorization is unrecoverable: the
// refresh protocol failed or no refresh token was stored. By the time a caller
// sees it the forced-logout collaborator has already run.
var ErrSessionExpired = errors.New("session expired")

// APIError is a logical failure reported through the response envelope.
// Code carries the backend's error code when present.
type APIError struct {
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}
