package router

import (
	"errors"
	"net/http"

	"chatdesk/internal/reconcile"
	"chatdesk/pkg/store/keys"
	"chatdesk/pkg/store/messages"
)

var ErrMalformedBody = errors.New("malformed request body")

// APIError is an error already mapped to a status and category. Message is
// safe to show to the caller.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Classify maps a domain error to an APIError. Validation errors expose
// their text; anything unrecognized is a storage failure reported with the
// fallback message only.
func Classify(err error, fallback string) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrMalformedBody),
		errors.Is(err, messages.ErrEmptyMessage),
		errors.Is(err, messages.ErrMessageTooLarge),
		errors.Is(err, messages.ErrAdminConversation),
		errors.Is(err, keys.ErrInvalidIdentity):
		return &APIError{Status: http.StatusBadRequest, Code: CodeValidationFailed, Message: err.Error(), Err: err}
	case errors.Is(err, reconcile.ErrAlreadyRunning):
		return &APIError{Status: http.StatusConflict, Code: CodeConflict, Message: err.Error(), Err: err}
	default:
		return &APIError{Status: http.StatusInternalServerError, Code: CodeStorageFailure, Message: fallback, Err: err}
	}
}

func Unauthorized() *APIError {
	return &APIError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "Unauthorized"}
}

func Forbidden() *APIError {
	return &APIError{Status: http.StatusForbidden, Code: CodeForbidden, Message: "Forbidden"}
}
