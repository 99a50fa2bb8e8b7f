package watch

import (
	"testing"
	"time"
)

func TestLedgerMarkAndLookup(t *testing.T) {
	l := NewLedger()

	if _, ok := l.LastNotified(1, "glider"); ok {
		t.Fatal("expected no entry for fresh ledger")
	}

	t0 := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	l.MarkNotified(1, "glider", t0)

	got, ok := l.LastNotified(1, "glider")
	if !ok || !got.Equal(t0) {
		t.Fatalf("got (%v, %v), want (%v, true)", got, ok, t0)
	}

	// Last write wins, even out of order.
	earlier := t0.Add(-time.Hour)
	l.MarkNotified(1, "glider", earlier)
	if got, _ := l.LastNotified(1, "glider"); !got.Equal(earlier) {
		t.Fatalf("expected last write to win, got %v", got)
	}
}

func TestLedgerIsolatesUsers(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	l.MarkNotified(1, "glider", now)

	if _, ok := l.LastNotified(2, "glider"); ok {
		t.Fatal("entry leaked across users")
	}
}

func TestLedgerClear(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	l.MarkNotified(1, "glider", now)
	l.Clear(1, "glider")

	if _, ok := l.LastNotified(1, "glider"); ok {
		t.Fatal("expected entry cleared")
	}

	// Clearing missing entries is a no-op.
	l.Clear(1, "glider")
	l.Clear(42, "reaper")
}
