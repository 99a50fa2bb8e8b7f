package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

func TestStartJobRequiresRunningScheduler(t *testing.T) {
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool { return false }, logx.Nop())
	if s.StartJob(1) {
		t.Fatal("StartJob must fail before Start")
	}
}

func TestStartJobOnePerUser(t *testing.T) {
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool { return false }, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if !s.StartJob(1) {
		t.Fatal("first StartJob should succeed")
	}
	if s.StartJob(1) {
		t.Fatal("second StartJob for the same user must report false")
	}
	if !s.StartJob(2) {
		t.Fatal("a different user gets their own job")
	}
	if got := s.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}
}

func TestStartJobFiresImmediateFirstTick(t *testing.T) {
	ticked := make(chan watch.UserID, 1)
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool {
		select {
		case ticked <- u:
		default:
		}
		return false
	}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.StartJob(7)
	select {
	case u := <-ticked:
		if u != 7 {
			t.Fatalf("ticked for user %d, want 7", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first tick did not fire")
	}
}

func TestStopJobIdempotent(t *testing.T) {
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool { return false }, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.StartJob(1)
	if got := s.StopJob(1); got != Stopped {
		t.Fatalf("first StopJob = %v, want Stopped", got)
	}
	if got := s.StopJob(1); got != NotRunning {
		t.Fatalf("second StopJob = %v, want NotRunning", got)
	}
	if s.Active(1) {
		t.Fatal("job still active after StopJob")
	}
}

func TestStopJobBlocksLateTicks(t *testing.T) {
	var ticks atomic.Int64
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool {
		ticks.Add(1)
		return false
	}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.mu.Lock()
	s.c.Stop() // freeze cron so the entry never fires on its own
	s.mu.Unlock()

	s.StartJob(1)
	s.mu.Lock()
	j := s.jobs[1]
	s.mu.Unlock()

	// Wait out the immediate first tick, then stop.
	waitFor(t, func() bool { return ticks.Load() == 1 })
	s.StopJob(1)

	// A tick that already left the runner before StopJob must be a no-op.
	s.runTick(1, j)
	if got := ticks.Load(); got != 1 {
		t.Fatalf("tick ran after StopJob: %d runs", got)
	}
}

func TestOverlappingTicksSkip(t *testing.T) {
	release := make(chan struct{})
	var ticks atomic.Int64
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool {
		ticks.Add(1)
		<-release
		return false
	}, logx.Nop())
	s.Start(context.Background())

	s.StartJob(1)
	s.mu.Lock()
	j := s.jobs[1]
	s.mu.Unlock()

	waitFor(t, func() bool { return ticks.Load() == 1 })

	// Second run while the first is still inside the tick func.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runTick(1, j)
	}()
	wg.Wait()
	if got := ticks.Load(); got != 1 {
		t.Fatalf("overlapping tick was not skipped: %d runs", got)
	}

	close(release)
	s.Stop(context.Background())
}

func TestTickSelfStopReleasesJob(t *testing.T) {
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool { return true }, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.StartJob(3)
	waitFor(t, func() bool { return !s.Active(3) })
}

func TestSchedulerStopFlagsAllJobs(t *testing.T) {
	s := NewScheduler(time.Hour, func(ctx context.Context, u watch.UserID) bool { return false }, logx.Nop())
	s.Start(context.Background())
	s.StartJob(1)
	s.StartJob(2)

	s.Stop(context.Background())
	if s.Active(1) || s.Active(2) {
		t.Fatal("jobs survived scheduler Stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
