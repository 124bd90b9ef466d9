package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a client-observable failure.
type Kind string

const (
	// KindTransport covers network unreachable / timeout failures.
	KindTransport Kind = "transport"
	// KindAuth covers expired credentials where refresh failed or was absent.
	KindAuth Kind = "auth"
	// KindAPI covers any other non-2xx response (validation/business errors).
	KindAPI Kind = "api"
)

// Error is the single normalized shape every failing request resolves to.
// Callers receive it for local handling (stopping a spinner, exiting non-zero)
// but are not expected to re-report it: the client has already published one
// notification by the time an Error is returned.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for transport failures
	Message string // human-readable, already surfaced via the notification sink
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is a normalized authentication failure.
func IsAuthError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindAuth
}

// IsTransportError reports whether err is a normalized transport failure.
func IsTransportError(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindTransport
}

// serverMessage is the structured error payload the backend returns.
// Both {"detail": "..."} and {"message": "..."} shapes are in use.
type serverMessage struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// extractMessage pulls a human-readable message out of a failure response.
// Priority: structured server field, then a generic fallback per status.
func extractMessage(status int, body []byte) string {
	if len(body) > 0 {
		var sm serverMessage
		if err := json.Unmarshal(body, &sm); err == nil {
			switch {
			case sm.Detail != "":
				return sm.Detail
			case sm.Message != "":
				return sm.Message
			case sm.Error != "":
				return sm.Error
			}
		}
	}

	switch status {
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "you do not have permission to do that"
	case http.StatusNotFound:
		return "the requested resource was not found"
	case http.StatusRequestEntityTooLarge:
		return "the file is too large"
	case http.StatusTooManyRequests:
		return "too many requests, slow down"
	}
	if status >= 500 {
		return "the server encountered an error, try again later"
	}
	return fmt.Sprintf("request failed with status %d", status)
}
