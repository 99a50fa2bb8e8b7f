package watch

import (
	"sync"
	"time"
)

// Ledger records, per user and item, when the last notification for that item
// was sent. An entry exists only for items that have been notified at least
// once. Safe for concurrent use.
//
// Entries are pure bookkeeping: last write wins, no monotonicity checks.
type Ledger struct {
	mu sync.RWMutex
	m  map[UserID]map[string]time.Time
}

func NewLedger() *Ledger {
	return &Ledger{m: map[UserID]map[string]time.Time{}}
}

// LastNotified returns the recorded time for (user, name), if any.
func (l *Ledger) LastNotified(user UserID, name string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.m[user][name]
	return t, ok
}

// MarkNotified records now as the last-notified time, overwriting any prior value.
func (l *Ledger) MarkNotified(user UserID, name string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byItem, ok := l.m[user]
	if !ok {
		byItem = map[string]time.Time{}
		l.m[user] = byItem
	}
	byItem[name] = now
}

// Clear removes any recorded time for (user, name). Called when an item is
// unwatched so a later re-add is not blocked by stale cooldown state.
func (l *Ledger) Clear(user UserID, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if byItem, ok := l.m[user]; ok {
		delete(byItem, name)
		if len(byItem) == 0 {
			delete(l.m, user)
		}
	}
}
