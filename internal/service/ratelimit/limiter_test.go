package ratelimit

import (
	"testing"
	"time"
)

func TestTradeCooldownPerKey(t *testing.T) {
	l := New(4*time.Second, 1)
	t0 := time.Unix(1_700_000_000, 0)

	if !l.AllowAt("s1", t0) {
		t.Fatalf("first trade must pass")
	}
	if l.AllowAt("s1", t0.Add(3*time.Second)) {
		t.Fatalf("trade inside cooldown passed")
	}
	if !l.AllowAt("s2", t0.Add(time.Second)) {
		t.Fatalf("keys must be independent")
	}
	if d := l.Delay("s1", t0.Add(3*time.Second)); d != time.Second {
		t.Fatalf("delay = %s, want 1s", d)
	}
	if !l.AllowAt("s1", t0.Add(4*time.Second)) {
		t.Fatalf("trade after cooldown rejected")
	}
}

func TestForgetResetsBucket(t *testing.T) {
	l := New(time.Minute, 1)
	t0 := time.Unix(1_700_000_000, 0)
	l.AllowAt("u", t0)
	l.Forget("u")
	if !l.AllowAt("u", t0) {
		t.Fatalf("forgotten key still limited")
	}
}
