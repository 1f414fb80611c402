package ledger

import (
	"context"
	"sort"
	"sync"
)

// AccountLocks serializes ledger work per account inside one process.
// Multi-account callers always acquire in sorted id order, so two opposing
// transfers cannot deadlock.
type AccountLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires every id (duplicates and empty ids ignored) and returns the
// release func. It gives up with ctx.Err() if ctx ends while waiting.
func (l *AccountLocks) Lock(ctx context.Context, ids ...string) (func(), error) {
	keys := sortedKeys(ids)
	acquired := make([]string, 0, len(keys))

	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			l.unlock(acquired[i])
		}
	}

	for _, id := range keys {
		e := l.ref(id)
		select {
		case e.sem <- struct{}{}:
			acquired = append(acquired, id)
		case <-ctx.Done():
			l.unref(id)
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (l *AccountLocks) ref(id string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	return e
}

func (l *AccountLocks) unref(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

func (l *AccountLocks) unlock(id string) {
	l.mu.Lock()
	e := l.entries[id]
	l.mu.Unlock()
	<-e.sem
	l.unref(id)
}

func sortedKeys(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}

// size is the number of live entries; used by tests to check cleanup.
func (l *AccountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
