// Package errors defines the gateway's error taxonomy. Session-level errors
// (auth, transient network) are consumed inside the session store and never
// reach handlers as exceptions; operation errors carry a user-presentable
// message for the notification payload.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth marks an HTTP 401/403 from the identity or refresh endpoint.
	// It is the only upstream failure that deauthenticates a session.
	ErrAuth = errors.New("authentication rejected")

	// ErrTransient marks any other failed round-trip to upstream during
	// identity revalidation. The previously known-good session survives it.
	ErrTransient = errors.New("transient upstream failure")

	// ErrWidgetLoad marks vendor script loading that failed after
	// exhausting all retry attempts.
	ErrWidgetLoad = errors.New("widget script load failed")

	// ErrSessionNotFound is returned by the session registry for an unknown
	// or expired browser session id.
	ErrSessionNotFound = errors.New("session not found")
)

// AuthError wraps ErrAuth with the upstream status code that triggered it.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected by upstream (status %d)", e.Status)
}

func (e *AuthError) Unwrap() error { return ErrAuth }

// NewAuthError builds an AuthError for the given upstream status.
func NewAuthError(status int) *AuthError {
	return &AuthError{Status: status}
}

// IsAuthStatus reports whether an upstream HTTP status deauthenticates.
func IsAuthStatus(status int) bool {
	return status == 401 || status == 403
}

// ValidationError is a client-side form validation failure, raised before any
// request is issued.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RemoteOperationError is a failed document or chat operation. Handlers
// convert it into a dismissible notification; Retryable tells the frontend
// whether to offer a retry action.
type RemoteOperationError struct {
	Op        string `json:"op"`
	Message   string `json:"message"`
	Status    int    `json:"status,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// NewRemoteOperationError builds a retryable operation error with a message
// extracted from the upstream response body.
func NewRemoteOperationError(op string, status int, body map[string]interface{}) *RemoteOperationError {
	return &RemoteOperationError{
		Op:        op,
		Message:   MessageFromResponse(body),
		Status:    status,
		Retryable: true,
	}
}

// MessageFromResponse extracts a human-readable message from the known
// upstream response shapes, falling back to a generic message. The fields are
// tried in the order the legacy backend has been observed to use them.
func MessageFromResponse(body map[string]interface{}) string {
	for _, key := range []string{"detail", "message", "erro", "error"} {
		if v, ok := body[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return "Ocorreu um erro. Tente novamente."
}
