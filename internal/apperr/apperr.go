// README: Error taxonomy shared by all modules; handlers map these to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindNotAuthorized   Kind = "not_authorized"
	KindNotFound        Kind = "not_found"
	KindSeatConflict    Kind = "seat_conflict"
	KindInvalidState    Kind = "invalid_state_transition"
	KindDuplicateBook   Kind = "duplicate_booking"
	KindDuplicateReview Kind = "duplicate_review"
	KindInternal        Kind = "internal"
)

// Sentinels. Modules wrap them with context: fmt.Errorf("%w: ride is full", ErrSeatConflict).
var (
	ErrValidation      = &sentinel{kind: KindValidation, msg: "validation failed"}
	ErrUnauthenticated = &sentinel{kind: KindUnauthenticated, msg: "unauthenticated"}
	ErrNotAuthorized   = &sentinel{kind: KindNotAuthorized, msg: "not authorized"}
	ErrNotFound        = &sentinel{kind: KindNotFound, msg: "not found"}
	ErrSeatConflict    = &sentinel{kind: KindSeatConflict, msg: "not enough seats"}
	ErrInvalidState    = &sentinel{kind: KindInvalidState, msg: "invalid state transition"}
	ErrDuplicateBook   = &sentinel{kind: KindDuplicateBook, msg: "duplicate booking"}
	ErrDuplicateReview = &sentinel{kind: KindDuplicateReview, msg: "duplicate review"}
	ErrInternal        = &sentinel{kind: KindInternal, msg: "internal error"}
)

type sentinel struct {
	kind Kind
	msg  string
}

func (s *sentinel) Error() string { return s.msg }

// ValidationError carries field-level detail. It matches ErrValidation under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for f, m := range e.Fields {
			return fmt.Sprintf("%s: %s", f, m)
		}
	}
	return ErrValidation.msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// KindOf returns the stable kind of err; anything unrecognised is internal.
func KindOf(err error) Kind {
	var s *sentinel
	if errors.As(err, &s) {
		return s.kind
	}
	var v *ValidationError
	if errors.As(err, &v) {
		return KindValidation
	}
	return KindInternal
}

// Status maps a kind to its HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindValidation, KindSeatConflict, KindInvalidState, KindDuplicateBook, KindDuplicateReview:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
