package sequencer

import (
	"context"
	"sync"
)

// Locker grants exclusive ownership of a named critical section. The returned
// unlock function is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

// MemoryLocker is an in-process keyed lock. Waiters on the same name are served
// in arrival order; different names never contend.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	held    bool
	waiters []chan struct{}
	refs    int
}

// NewMemoryLocker constructs an empty keyed lock.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]*lockEntry)}
}

// Lock blocks until name is free or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, name string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	entry, ok := l.entries[name]
	if !ok {
		entry = &lockEntry{}
		l.entries[name] = entry
	}
	entry.refs++
	if !entry.held {
		entry.held = true
		l.mu.Unlock()
		return l.unlocker(name, entry), nil
	}
	granted := make(chan struct{})
	entry.waiters = append(entry.waiters, granted)
	l.mu.Unlock()

	select {
	case <-granted:
		return l.unlocker(name, entry), nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, waiter := range entry.waiters {
			if waiter == granted {
				entry.waiters = append(entry.waiters[:i], entry.waiters[i+1:]...)
				entry.refs--
				l.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		l.mu.Unlock()
		// Ownership was handed over while we were giving up; pass it on.
		l.release(name, entry)
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) unlocker(name string, entry *lockEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(name, entry) })
	}
}

func (l *MemoryLocker) release(name string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if len(entry.waiters) > 0 {
		next := entry.waiters[0]
		entry.waiters = entry.waiters[1:]
		close(next)
	} else {
		entry.held = false
	}
	if entry.refs == 0 {
		delete(l.entries, name)
	}
}

// size reports how many names are tracked.
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
