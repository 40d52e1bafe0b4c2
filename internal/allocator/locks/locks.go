// Package locks provides keyed mutual exclusion for allocation scopes.
// Region creation and retirement hold a country scope; host writes hold a
// region scope. Callers that need both take the country first.
package locks

import (
	"context"
	"strings"
	"sync"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
)

// CountryKey is the scope of region allocation within a country.
func CountryKey(country string) string {
	return "country:" + strings.ToLower(country)
}

// RegionKey is the scope of host allocation within a region.
func RegionKey(regionID string) string {
	return "region:" + regionID
}

type entry struct {
	ch   chan struct{} // holds one token while the scope is locked
	refs int           // holders plus waiters
}

// ScopeLocks hands out one exclusive lock per key. Entries are dropped once
// nobody holds or waits on them so the map does not grow with every region
// ever touched.
type ScopeLocks struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty lock table.
func New() *ScopeLocks {
	return &ScopeLocks{locks: make(map[string]*entry)}
}

// Lock blocks until the scope is free or ctx is done. The returned func
// releases the scope and must be called exactly once.
func (l *ScopeLocks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, apperrors.NewSystemError(apperrors.ErrCodeConcurrencyConflict, "gave up waiting for allocation scope", true, ctx.Err()).
			WithMetadata("scope", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

// LockAll acquires the keys in the given order and returns a func that
// releases them in reverse. On failure nothing stays held.
func (l *ScopeLocks) LockAll(ctx context.Context, keys ...string) (func(), error) {
	unlocks := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, key := range keys {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return releaseAll, nil
}

func (l *ScopeLocks) release(key string, e *entry, held bool) {
	if held {
		<-e.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Active returns how many scopes are currently held or awaited.
func (l *ScopeLocks) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
