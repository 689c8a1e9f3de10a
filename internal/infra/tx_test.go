package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: CodeSerializationFailure}, true},
		{fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: CodeDeadlockDetected}), true},
		{&pgconn.PgError{Code: CodeUniqueViolation}, false},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "bookings_one_open_per_passenger"})
	if !IsUniqueViolation(err, "bookings_one_open_per_passenger") {
		t.Error("expected match on constraint name")
	}
	if !IsUniqueViolation(err, "") {
		t.Error("expected match on any constraint")
	}
	if IsUniqueViolation(err, "reviews_unique_triple") {
		t.Error("expected no match on other constraint")
	}
}
