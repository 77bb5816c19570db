package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRetryableByKind(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{Transport("x", nil), true},
		{HTTPStatus("x", nil), true},
		{Parse("x", nil), true},
		{Busy("x"), true},
		{NotFound("x"), false},
		{InvariantViolation("x"), false},
		{Unavailable("x", nil), false},
	}
	for _, c := range cases {
		if got := Retryable(c.err); got != c.want {
			t.Errorf("Retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRetryableDefaultsTrueForUnclassifiedErrors(t *testing.T) {
	if !Retryable(errors.New("boom")) {
		t.Fatal("expected unclassified error to default to retryable")
	}
}

func TestRetryableUnwrapsWrappedKindedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NotFound("missing"))
	if Retryable(wrapped) {
		t.Fatal("expected wrapped NotFound to remain non-retryable")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	e := Transport("load thing", errors.New("connection refused"))
	msg := e.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
	if !strings.Contains(msg, "connection refused") {
		t.Fatalf("expected message to include cause, got %q", msg)
	}
}
