package recompute

import (
	"context"
	"sync"

	"financial-diagnostics/internal/statements"
)

// keyedLocks serializes work per series inside one process. The database
// advisory lock does the same across processes.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[statements.SeriesKey]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[statements.SeriesKey]*keyLock)}
}

// Lock blocks until the series lock is held or ctx is done. The returned
// func releases it.
func (k *keyedLocks) Lock(ctx context.Context, key statements.SeriesKey) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedLocks) release(key statements.SeriesKey, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// size is the number of keys currently tracked.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
