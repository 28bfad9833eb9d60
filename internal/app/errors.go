package app

import (
	"errors"
	"fmt"
	"net/http"

	"navtree/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// validationError reports field-level problems keyed by JSON field name.
func validationError(details map[string]string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed", details)
}

func notFound() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "Menu item not found", nil)
}

// errGroupChanged is returned when an item changed sibling group between the
// read that chose the locks and the locked re-read.
var errGroupChanged = domainError(http.StatusConflict, "CONFLICT", "Menu item was moved concurrently, retry", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
