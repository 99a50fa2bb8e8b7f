package watcher

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"dropwatch/internal/catalog"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

// fakeSource returns a fixed snapshot or error and counts fetches.
type fakeSource struct {
	snap    catalog.Snapshot
	err     error
	fetches int
}

func (f *fakeSource) Fetch(ctx context.Context) (catalog.Snapshot, error) {
	f.fetches++
	if f.err != nil {
		return catalog.Snapshot{}, f.err
	}
	return f.snap, nil
}

func newEngine(src catalog.Source) (*Engine, *watch.Store, *watch.Ledger) {
	store := watch.NewStore()
	ledger := watch.NewLedger()
	return NewEngine(store, ledger, src, logx.Nop()), store, ledger
}

func TestScheduledCheckEmptyWatchList(t *testing.T) {
	src := &fakeSource{snap: catalog.SnapshotOf("glider")}
	e, _, _ := newEngine(src)

	res := e.ScheduledCheck(context.Background(), 1, time.Now())
	if res.Status != StatusNoWatchedItems {
		t.Fatalf("expected StatusNoWatchedItems, got %v", res.Status)
	}
	if src.fetches != 0 {
		t.Fatalf("must not fetch for an empty watch list, got %d fetches", src.fetches)
	}
}

func TestScheduledCheckFetchFailureLeavesLedgerUntouched(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	e, store, ledger := newEngine(src)
	store.Add(1, "glider")

	res := e.ScheduledCheck(context.Background(), 1, time.Now())
	if res.Status != StatusFetchFailed {
		t.Fatalf("expected StatusFetchFailed, got %v", res.Status)
	}
	if _, ok := ledger.LastNotified(1, "glider"); ok {
		t.Fatal("ledger must not advance on fetch failure")
	}
}

func TestScheduledCheckEmptyShopIsNotAnError(t *testing.T) {
	src := &fakeSource{snap: catalog.SnapshotOf()}
	e, store, _ := newEngine(src)
	store.Add(1, "reaper")

	res := e.ScheduledCheck(context.Background(), 1, time.Now())
	if res.Status != StatusFound {
		t.Fatalf("expected StatusFound, got %v", res.Status)
	}
	if len(res.Items) != 0 {
		t.Fatalf("expected no items, got %v", res.Items)
	}
}

func TestScheduledCheckMatchesAndMarks(t *testing.T) {
	src := &fakeSource{snap: catalog.SnapshotOf("skull trooper", "renegade raider")}
	e, store, ledger := newEngine(src)
	store.Add(1, "skull trooper")

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	res := e.ScheduledCheck(context.Background(), 1, now)
	if res.Status != StatusFound || !reflect.DeepEqual(res.Items, []string{"skull trooper"}) {
		t.Fatalf("unexpected result: %+v", res)
	}

	last, ok := ledger.LastNotified(1, "skull trooper")
	if !ok || !last.Equal(now) {
		t.Fatalf("ledger not marked: (%v, %v)", last, ok)
	}
}

func TestScheduledCheckCooldownLaw(t *testing.T) {
	src := &fakeSource{snap: catalog.SnapshotOf("glider")}
	e, store, _ := newEngine(src)
	store.Add(1, "glider")

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if res := e.ScheduledCheck(context.Background(), 1, t0); len(res.Items) != 1 {
		t.Fatalf("first check should notify, got %+v", res)
	}
	if res := e.ScheduledCheck(context.Background(), 1, t0.Add(Cooldown-time.Second)); len(res.Items) != 0 {
		t.Fatalf("check inside cooldown should be empty, got %+v", res)
	}
	res := e.ScheduledCheck(context.Background(), 1, t0.Add(Cooldown+time.Second))
	if !reflect.DeepEqual(res.Items, []string{"glider"}) {
		t.Fatalf("check past cooldown should notify again, got %+v", res)
	}
}

func TestScheduledCheckPreservesWatchOrder(t *testing.T) {
	src := &fakeSource{snap: catalog.SnapshotOf("c", "a", "b")}
	e, store, _ := newEngine(src)
	for _, n := range []string{"b", "c", "missing", "a"} {
		store.Add(1, n)
	}

	res := e.ScheduledCheck(context.Background(), 1, time.Now())
	want := []string{"b", "c", "a"}
	if !reflect.DeepEqual(res.Items, want) {
		t.Fatalf("got %v, want %v", res.Items, want)
	}
}

func TestScheduledCheckIsolatesUsers(t *testing.T) {
	src := &fakeSource{snap: catalog.SnapshotOf("glider")}
	e, store, ledger := newEngine(src)
	store.Add(1, "glider")
	store.Add(2, "glider")

	now := time.Now()
	e.ScheduledCheck(context.Background(), 1, now)

	if _, ok := ledger.LastNotified(2, "glider"); ok {
		t.Fatal("user 2 ledger must be untouched by user 1's check")
	}
	if res := e.ScheduledCheck(context.Background(), 2, now); len(res.Items) != 1 {
		t.Fatalf("user 2 should still be eligible, got %+v", res)
	}
}

func TestOnDemandCheckSkipsCooldownAndLedger(t *testing.T) {
	src := &fakeSource{snap: catalog.SnapshotOf("glider")}
	e, store, ledger := newEngine(src)
	store.Add(1, "glider")

	t0 := time.Now()
	e.ScheduledCheck(context.Background(), 1, t0)

	// Inside the cooldown window an on-demand check still reports the item.
	res := e.OnDemandCheck(context.Background(), 1)
	if res.Status != StatusFound || !reflect.DeepEqual(res.Items, []string{"glider"}) {
		t.Fatalf("unexpected on-demand result: %+v", res)
	}

	// And it never advances the ledger.
	last, _ := ledger.LastNotified(1, "glider")
	if !last.Equal(t0) {
		t.Fatalf("on-demand check mutated the ledger: %v", last)
	}
}

func TestOnDemandCheckOutcomes(t *testing.T) {
	t.Run("no watched items", func(t *testing.T) {
		e, _, _ := newEngine(&fakeSource{snap: catalog.SnapshotOf("glider")})
		if res := e.OnDemandCheck(context.Background(), 1); res.Status != StatusNoWatchedItems {
			t.Fatalf("got %+v", res)
		}
	})
	t.Run("fetch failed", func(t *testing.T) {
		e, store, _ := newEngine(&fakeSource{err: errors.New("down")})
		store.Add(1, "glider")
		if res := e.OnDemandCheck(context.Background(), 1); res.Status != StatusFetchFailed {
			t.Fatalf("got %+v", res)
		}
	})
	t.Run("found none", func(t *testing.T) {
		e, store, _ := newEngine(&fakeSource{snap: catalog.SnapshotOf("reaper")})
		store.Add(1, "glider")
		res := e.OnDemandCheck(context.Background(), 1)
		if res.Status != StatusFound || len(res.Items) != 0 {
			t.Fatalf("got %+v", res)
		}
	})
}
