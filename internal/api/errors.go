package api

import (
	"errors"
	"fmt"
	"net/http"
)

// CodeUnauthorized is the error code the backend attaches to
// credential failures; the refresh path also uses it when the session
// cookie is rejected.
const CodeUnauthorized = "UNAUTHORIZED"

// Error is the failure shape of every remote call: the HTTP status
// plus the backend's optional {code, message} payload.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// IsUnauthorized reports whether err classifies as a credential
// failure. This is the single classification the fallback router keys
// on.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Code == CodeUnauthorized
	}
	return false
}

// IsConflict reports a duplicate-resource failure (e.g. URL already saved).
func IsConflict(err error) bool {
	return hasStatus(err, http.StatusConflict)
}

// IsNotFound reports an unknown-resource failure.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsValidation reports a malformed-input failure.
func IsValidation(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

func hasStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
