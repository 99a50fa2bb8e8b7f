package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

// StopResult is the outcome of stopping a user's poll job.
type StopResult int

const (
	Stopped StopResult = iota
	NotRunning
)

// TickFunc runs one poll tick for a user. Returning stop=true asks the
// scheduler to release the user's job (the empty-watch-list safeguard).
type TickFunc func(ctx context.Context, user watch.UserID) (stop bool)

// pollJob is the per-user recurring job handle. Its existence in
// Scheduler.jobs is the sole source of truth for "is polling active".
type pollJob struct {
	entryID cron.EntryID

	mu      sync.Mutex
	running bool // a tick is executing; concurrent ticks for one user skip
	stopped bool // set by StopJob before the entry is removed
}

// Scheduler owns at most one recurring poll job per user. A single shared
// cron runner drives every job; jobs for different users run concurrently,
// ticks for one user never overlap (skip-if-running).
type Scheduler struct {
	interval time.Duration
	tick     TickFunc
	log      logx.Logger

	mu     sync.Mutex
	c      *cron.Cron
	jobs   map[watch.UserID]*pollJob
	runCtx context.Context
	cancel context.CancelFunc
}

func NewScheduler(interval time.Duration, tick TickFunc, log logx.Logger) *Scheduler {
	if interval <= 0 {
		interval = Cooldown
	}
	return &Scheduler{
		interval: interval,
		tick:     tick,
		log:      log,
		jobs:     map[watch.UserID]*pollJob{},
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New()
	s.c.Start()
	s.log.Info("poll scheduler started", logx.Duration("interval", s.interval))
}

func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	c := s.c
	s.c = nil
	for user, j := range s.jobs {
		j.mu.Lock()
		j.stopped = true
		j.mu.Unlock()
		delete(s.jobs, user)
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	// Wait for in-flight cron jobs, bounded by ctx.
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("poll scheduler stop cancelled", logx.Err(ctx.Err()))
		return
	}
	s.log.Info("poll scheduler stopped")
}

// StartJob begins recurring checks for the user. The first tick fires
// near-immediately; later ticks follow the fixed interval. It reports false
// when a job already exists (at most one job per user).
func (s *Scheduler) StartJob(user watch.UserID) bool {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		s.log.Warn("poll scheduler not running; job not started", logx.Int64("user", int64(user)))
		return false
	}
	if _, exists := s.jobs[user]; exists {
		s.mu.Unlock()
		return false
	}

	j := &pollJob{}
	spec := fmt.Sprintf("@every %s", s.interval)
	entryID, err := s.c.AddFunc(spec, func() { s.runTick(user, j) })
	if err != nil {
		s.mu.Unlock()
		s.log.Error("poll job register failed", logx.Int64("user", int64(user)), logx.String("spec", spec), logx.Err(err))
		return false
	}
	j.entryID = entryID
	s.jobs[user] = j
	s.mu.Unlock()

	s.log.Info("poll job started", logx.Int64("user", int64(user)), logx.Duration("interval", s.interval))

	// Cron fires the first run only after one full interval; check right away.
	go s.runTick(user, j)
	return true
}

// StopJob cancels the user's job. After it returns no new tick starts for
// this user (an already-running tick may finish). Idempotent.
func (s *Scheduler) StopJob(user watch.UserID) StopResult {
	s.mu.Lock()
	j, ok := s.jobs[user]
	if !ok {
		s.mu.Unlock()
		return NotRunning
	}
	delete(s.jobs, user)
	c := s.c
	s.mu.Unlock()

	// Flag first so a tick that already left the cron runner cannot start.
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
	if c != nil {
		c.Remove(j.entryID)
	}

	s.log.Info("poll job stopped", logx.Int64("user", int64(user)))
	return Stopped
}

// Active reports whether the user has a live poll job.
func (s *Scheduler) Active(user watch.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[user]
	return ok
}

// ActiveCount returns how many users are being polled.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) runTick(user watch.UserID, j *pollJob) {
	j.mu.Lock()
	if j.stopped || j.running {
		skip := j.running
		j.mu.Unlock()
		if skip {
			s.log.Debug("tick skipped (previous run still running)", logx.Int64("user", int64(user)))
		}
		return
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if stop := s.tick(ctx, user); stop {
		if s.StopJob(user) == Stopped {
			s.log.Info("poll job self-stopped (empty watch list)", logx.Int64("user", int64(user)))
		}
	}
}
