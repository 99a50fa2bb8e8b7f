package watcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"dropwatch/internal/catalog"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

// AddOutcome is the user-visible result of Watch.
type AddOutcome int

const (
	ItemAdded AddOutcome = iota
	ItemAlreadyWatched
)

// RemoveOutcome is the user-visible result of Unwatch.
type RemoveOutcome int

const (
	ItemRemoved RemoveOutcome = iota
	ItemNotWatched
)

// Notifier delivers an aggregated alert to a user. Failures must be handled
// by the implementation; the watcher never rolls state back on delivery errors.
type Notifier interface {
	Deliver(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// PollInterval is the period of each user's recurring check (default: Cooldown).
	PollInterval time.Duration
}

// Service is the facade the front-end talks to. It owns the watch store, the
// notification ledger, the match engine and the poll scheduler, and
// orchestrates the contracts between them (e.g. unwatch clears the ledger).
//
// A per-user mutex serializes a scheduled tick against a concurrent
// add/remove for the same user; different users never share a lock.
type Service struct {
	log    logx.Logger
	store  *watch.Store
	ledger *watch.Ledger
	engine *Engine
	sched  *Scheduler
	notif  Notifier

	// now is replaceable in tests.
	now func() time.Time

	lockMu sync.Mutex
	locks  map[watch.UserID]*sync.Mutex
}

func New(cfg Config, source catalog.Source, notif Notifier, log logx.Logger) *Service {
	s := &Service{
		log:    log,
		store:  watch.NewStore(),
		ledger: watch.NewLedger(),
		notif:  notif,
		now:    time.Now,
		locks:  map[watch.UserID]*sync.Mutex{},
	}
	s.engine = NewEngine(s.store, s.ledger, source, log)
	s.sched = NewScheduler(cfg.PollInterval, s.tick, log)
	return s
}

func (s *Service) Start(ctx context.Context) { s.sched.Start(ctx) }
func (s *Service) Stop(ctx context.Context)  { s.sched.Stop(ctx) }

// Ensure registers a user on first contact (empty watch list, no job).
func (s *Service) Ensure(user watch.UserID) { s.store.Ensure(user) }

// Watch adds an item to the user's list. When the add succeeds and the user
// has no live poll job yet, one is started (with a near-immediate first tick).
// pollingStarted reports that transition so the front-end can mention it.
func (s *Service) Watch(user watch.UserID, rawName string) (name string, outcome AddOutcome, pollingStarted bool) {
	mu := s.userLock(user)
	mu.Lock()
	defer mu.Unlock()

	name, res := s.store.Add(user, rawName)
	if res == watch.AlreadyPresent {
		return name, ItemAlreadyWatched, false
	}

	pollingStarted = s.sched.StartJob(user)
	s.log.Info("item watched",
		logx.Int64("user", int64(user)),
		logx.String("item", name),
		logx.Bool("polling_started", pollingStarted))
	return name, ItemAdded, pollingStarted
}

// Unwatch removes an item and drops its ledger entry, so re-adding the item
// later is never blocked by a stale cooldown.
func (s *Service) Unwatch(user watch.UserID, rawName string) (string, RemoveOutcome) {
	mu := s.userLock(user)
	mu.Lock()
	defer mu.Unlock()

	name, res := s.store.Remove(user, rawName)
	if res == watch.NotFound {
		return name, ItemNotWatched
	}
	s.ledger.Clear(user, name)
	s.log.Info("item unwatched", logx.Int64("user", int64(user)), logx.String("item", name))
	return name, ItemRemoved
}

// ListWatched returns the user's watched names in insertion order.
func (s *Service) ListWatched(user watch.UserID) []string {
	return s.store.List(user)
}

// CheckNow answers an explicit status query. It never mutates the ledger and
// is never throttled by the cooldown.
func (s *Service) CheckNow(ctx context.Context, user watch.UserID) CheckResult {
	return s.engine.OnDemandCheck(ctx, user)
}

// StopPolling cancels the user's recurring job. Idempotent.
func (s *Service) StopPolling(user watch.UserID) StopResult {
	return s.sched.StopJob(user)
}

// PollingActive reports whether the user has a live poll job.
func (s *Service) PollingActive(user watch.UserID) bool {
	return s.sched.Active(user)
}

// tick runs one scheduled check. The ledger is advanced inside the user lock;
// delivery happens after the lock is released (mark happens-before deliver,
// and a slow send never blocks the user's add/remove longer than needed).
func (s *Service) tick(ctx context.Context, user watch.UserID) (stop bool) {
	mu := s.userLock(user)
	mu.Lock()
	res := s.engine.ScheduledCheck(ctx, user, s.now())
	mu.Unlock()

	switch res.Status {
	case StatusNoWatchedItems:
		return true
	case StatusFetchFailed:
		// Ledger untouched; next tick retries.
		return false
	}

	if len(res.Items) > 0 {
		_ = s.notif.Deliver(ctx, int64(user), FormatShopAlert(res.Items))
	}
	return false
}

func (s *Service) userLock(user watch.UserID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.locks[user]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[user] = mu
	}
	return mu
}

// FormatShopAlert renders the aggregated scheduled-check message.
func FormatShopAlert(items []string) string {
	return fmt.Sprintf("🎉 Now in the item shop: %s!", strings.Join(items, ", "))
}
