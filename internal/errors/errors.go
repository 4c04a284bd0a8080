package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// Domain error taxonomy. Services return these (or wrap them); the HTTP
// layer maps them to status codes in one place so handlers stay clean.
var (
	// ErrValidation: malformed profile or request input, correctable by
	// the caller.
	ErrValidation = errors.New("validation failed")

	// ErrQuotaExceeded: free-match limit reached and no active premium
	// window. An expected business condition, not a fault.
	ErrQuotaExceeded = errors.New("free match quota exceeded")

	// ErrGeoLookup: the geocoding collaborator could not resolve a
	// location name. Non-fatal to search; location filtering degrades.
	ErrGeoLookup = errors.New("geo lookup failed")

	// ErrAllocationConflict: a concurrent allocation claimed one of the
	// parties mid-attempt. Retried internally; callers see "no match yet".
	ErrAllocationConflict = errors.New("allocation conflict")

	// ErrIntegrity: a uniqueness or state invariant was violated
	// (duplicate match pair, duplicate block edge, illegal transition).
	// Programmer-facing, never swallowed.
	ErrIntegrity = errors.New("integrity violation")

	// ErrStoreUnavailable: the persistence layer is unreachable. Fatal to
	// the in-flight request; transaction boundaries prevent partial state.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound: the referenced user or match does not exist.
	ErrNotFound = errors.New("not found")
)

// Validation wraps a caller-correctable input problem.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Integrity wraps an invariant violation with context for investigation.
func Integrity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

// NotFound wraps a missing-entity error.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsDuplicateKey reports whether err is the store's unique-constraint
// rejection. gorm normalizes this across MySQL and SQLite.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite driver surfaces constraint errors as plain strings
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

// Map converts repo/infra errors into the domain taxonomy. Keeps the
// service layer from inspecting driver errors directly.
func Map(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: record not found", ErrNotFound)

	case IsDuplicateKey(err):
		return fmt.Errorf("%w: %v", ErrIntegrity, err)

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, gorm.ErrInvalidTransaction):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)

	default:
		return err
	}
}

// HTTPStatus maps a domain error to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
