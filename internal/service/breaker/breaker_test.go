package breaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func fail(t *testing.T, b *Breaker) {
	t.Helper()
	done, err := b.Allow()
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	done(false)
}

func TestBreakerOpensAfterThreeConsecutiveFailures(t *testing.T) {
	b := New(WithCooldown(time.Hour))

	fail(t, b)
	fail(t, b)
	if b.State() != StateClosed {
		t.Fatalf("opened after two failures")
	}
	fail(t, b)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("open breaker allowed a call: %v", err)
	}
	if r := b.Remaining(); r <= 59*time.Minute {
		t.Fatalf("remaining = %s", r)
	}
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b := New()
	fail(t, b)
	fail(t, b)
	done, err := b.Allow()
	if err != nil {
		t.Fatal(err)
	}
	done(true)
	fail(t, b)
	if b.State() != StateClosed {
		t.Fatalf("success did not reset the failure streak")
	}
}

func TestBreakerFailuresOutsideWindowDoNotCount(t *testing.T) {
	b := New(WithWindow(40 * time.Millisecond))
	fail(t, b)
	fail(t, b)
	time.Sleep(60 * time.Millisecond)
	fail(t, b)
	if b.State() != StateClosed {
		t.Fatalf("stale failures counted")
	}
}

func TestBreakerHalfOpenAdmitsOneTrial(t *testing.T) {
	var mu sync.Mutex
	var changes []string
	b := New(WithThreshold(1), WithCooldown(30*time.Millisecond), WithStateHook(func(from, to State) {
		mu.Lock()
		changes = append(changes, string(from)+">"+string(to))
		mu.Unlock()
	}))

	fail(t, b)
	if _, err := b.Allow(); err == nil {
		t.Fatalf("allowed during cooldown")
	}
	time.Sleep(40 * time.Millisecond)

	trial, err := b.Allow()
	if err != nil {
		t.Fatalf("trial rejected: %v", err)
	}
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("second trial allowed")
	}
	trial(false)
	if b.State() != StateOpen {
		t.Fatalf("failed trial must reopen")
	}

	time.Sleep(40 * time.Millisecond)
	trial, err = b.Allow()
	if err != nil {
		t.Fatalf("trial rejected: %v", err)
	}
	trial(true)
	if b.State() != StateClosed {
		t.Fatalf("successful trial must close")
	}

	want := []string{"closed>open", "open>half_open", "half_open>open", "open>half_open", "half_open>closed"}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != len(want) {
		t.Fatalf("changes = %v", changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("changes = %v, want %v", changes, want)
		}
	}
}
