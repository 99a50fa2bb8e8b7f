// Package watch holds the per-user watch-list state: which item names each
// user wants to be told about, and when each item was last notified.
//
// Everything here is process-lifetime memory; there is no persistence.
package watch

import (
	"strings"
	"sync"
)

// UserID identifies a user. It keys all per-user state.
type UserID int64

// AddResult is the outcome of Store.Add.
type AddResult int

const (
	Added AddResult = iota
	AlreadyPresent
)

// RemoveResult is the outcome of Store.Remove.
type RemoveResult int

const (
	Removed RemoveResult = iota
	NotFound
)

// NormalizeName canonicalizes an item name: trimmed, lower-cased.
// Matching against the catalog is exact string equality on normalized names.
func NormalizeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Store maps each user to an ordered list of unique watched item names.
// Insertion order is preserved for display. Safe for concurrent use.
//
// An unknown user behaves as an empty list; lists are never destroyed while
// the process runs (an empty list is a valid, retained state).
type Store struct {
	mu    sync.RWMutex
	lists map[UserID][]string
}

func NewStore() *Store {
	return &Store{lists: map[UserID][]string{}}
}

// Ensure idempotently creates an empty list for a new user.
func (s *Store) Ensure(user UserID) {
	s.mu.Lock()
	if _, ok := s.lists[user]; !ok {
		s.lists[user] = []string{}
	}
	s.mu.Unlock()
}

// Add normalizes name and inserts it if absent.
// It returns the normalized name alongside the outcome.
func (s *Store) Add(user UserID, rawName string) (string, AddResult) {
	name := NormalizeName(rawName)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.lists[user] {
		if it == name {
			return name, AlreadyPresent
		}
	}
	s.lists[user] = append(s.lists[user], name)
	return name, Added
}

// Remove deletes the normalized name from the user's list if present.
func (s *Store) Remove(user UserID, rawName string) (string, RemoveResult) {
	name := NormalizeName(rawName)

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[user]
	for i, it := range list {
		if it == name {
			s.lists[user] = append(list[:i:i], list[i+1:]...)
			return name, Removed
		}
	}
	return name, NotFound
}

// List returns a copy of the user's watched names in insertion order.
func (s *Store) List(user UserID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.lists[user]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Len reports how many items the user watches.
func (s *Store) Len(user UserID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lists[user])
}
