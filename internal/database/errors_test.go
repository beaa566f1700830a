package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization failure", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock detected", &pq.Error{Code: "40P01"}, ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique violation", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"check violation", &pq.Error{Code: "23514"}, ErrorClassPermanent},
		{"wrapped deadlock", fmt.Errorf("commit transaction: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"plain error", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Errorf("%s: expected class %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	for _, code := range []pq.ErrorCode{"40001", "40P01", "55P03"} {
		if !IsRetryable(&pq.Error{Code: code}) {
			t.Errorf("Code %s should be retryable", code)
		}
	}
	if IsRetryable(&pq.Error{Code: "23505"}) {
		t.Error("Unique violation should not be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("Plain errors should not be retryable")
	}
}

func TestRetryExhaustedLockTimeout(t *testing.T) {
	err := retryExhausted(&pq.Error{Code: "55P03"}, 3)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("Expected ErrLockTimeout for exhausted lock waits, got: %v", err)
	}

	err = retryExhausted(&pq.Error{Code: "40001"}, 3)
	if errors.Is(err, ErrLockTimeout) {
		t.Errorf("Serialization exhaustion should not be a lock timeout: %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		t.Errorf("Expected the driver error to stay unwrappable, got: %v", err)
	}
}
