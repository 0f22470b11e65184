package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("session: %w", New(ErrConnection, "venue connect", cause))

	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause")
	}
	if errors.Is(err, ErrAuth) {
		t.Fatalf("unexpected auth kind")
	}
	if !IsTransient(err) || IsFatal(err) {
		t.Fatalf("connection error must be transient, not fatal")
	}
}

func TestFatalKinds(t *testing.T) {
	if !IsFatal(New(ErrAuth, "authorize", nil)) {
		t.Fatalf("auth must be fatal")
	}
	if !IsFatal(New(ErrRiskLimitExceeded, "risk", nil)) {
		t.Fatalf("risk limit must be fatal")
	}
	if IsFatal(New(ErrInsufficientBalance, "risk", nil)) {
		t.Fatalf("insufficient balance is not fatal")
	}
}

func TestErrorString(t *testing.T) {
	got := New(ErrRequestTimeout, "venue send", nil).Error()
	if got != "venue send: request timeout" {
		t.Fatalf("unexpected message %q", got)
	}
}
