// Package watcher implements the per-user shop watching core: the match
// engine that decides which watched items are due a notification, the poll
// scheduler that drives recurring per-user checks, and the service facade
// the front-end talks to.
package watcher

import (
	"context"
	"time"

	"dropwatch/internal/catalog"
	"dropwatch/internal/watch"
	logx "dropwatch/pkg/logx"
)

// Cooldown is the minimum gap between two notifications for the same
// user/item pair. Fixed; the poll interval is configurable separately.
const Cooldown = 24 * time.Hour

// CheckStatus distinguishes the three check outcomes a caller can see.
type CheckStatus int

const (
	// StatusFound means the check ran; Items holds the matches (possibly none).
	StatusFound CheckStatus = iota
	// StatusNoWatchedItems means the user's watch list is empty.
	StatusNoWatchedItems
	// StatusFetchFailed means the shop could not be fetched; nothing was
	// recorded and the caller should retry on the next tick.
	StatusFetchFailed
)

type CheckResult struct {
	Status CheckStatus

	// Items is ordered like the user's watch list. For a scheduled check it
	// holds the newly-eligible items (cooldown applied, ledger advanced);
	// for an on-demand check it holds every watched item currently in the shop.
	Items []string
}

// Engine computes which watched items should trigger a notification given
// the current shop snapshot and the notification ledger.
type Engine struct {
	store  *watch.Store
	ledger *watch.Ledger
	source catalog.Source
	log    logx.Logger
}

func NewEngine(store *watch.Store, ledger *watch.Ledger, source catalog.Source, log logx.Logger) *Engine {
	return &Engine{store: store, ledger: ledger, source: source, log: log}
}

// ScheduledCheck runs one recurring tick for the user.
//
// Eligible items are marked in the ledger BEFORE the result is returned, so
// marking always happens-before delivery. On a fetch failure the ledger is
// untouched; an empty shop with a successful fetch is a normal empty result.
func (e *Engine) ScheduledCheck(ctx context.Context, user watch.UserID, now time.Time) CheckResult {
	watched := e.store.List(user)
	if len(watched) == 0 {
		return CheckResult{Status: StatusNoWatchedItems}
	}

	snap, err := e.source.Fetch(ctx)
	if err != nil {
		e.log.Debug("scheduled check: shop fetch failed", logx.Int64("user", int64(user)), logx.Err(err))
		return CheckResult{Status: StatusFetchFailed}
	}

	var due []string
	for _, name := range watched {
		if !snap.Contains(name) {
			continue
		}
		if last, ok := e.ledger.LastNotified(user, name); ok && now.Sub(last) < Cooldown {
			continue
		}
		e.ledger.MarkNotified(user, name, now)
		due = append(due, name)
	}
	return CheckResult{Status: StatusFound, Items: due}
}

// OnDemandCheck answers an explicit "check now" request. It is a pure status
// query: the cooldown filter is skipped and the ledger is never written, so
// any number of on-demand checks leave scheduled behavior unchanged.
func (e *Engine) OnDemandCheck(ctx context.Context, user watch.UserID) CheckResult {
	watched := e.store.List(user)
	if len(watched) == 0 {
		return CheckResult{Status: StatusNoWatchedItems}
	}

	snap, err := e.source.Fetch(ctx)
	if err != nil {
		e.log.Debug("on-demand check: shop fetch failed", logx.Int64("user", int64(user)), logx.Err(err))
		return CheckResult{Status: StatusFetchFailed}
	}

	var present []string
	for _, name := range watched {
		if snap.Contains(name) {
			present = append(present, name)
		}
	}
	return CheckResult{Status: StatusFound, Items: present}
}
