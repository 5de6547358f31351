// Package syncutil holds locking primitives shared by the in-memory backends.
package syncutil

import (
	"context"
)

// ContextMutex is a mutual-exclusion lock whose Lock honours context
// cancellation. It is a buffered channel holding a single token.
type ContextMutex struct {
	ch chan struct{}
}

// NewContextMutex returns an unlocked ContextMutex.
func NewContextMutex() *ContextMutex {
	m := &ContextMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{} // Start unlocked.
	return m
}

// LockContext acquires the mutex or gives up when ctx is done.
// On success the caller MUST call the returned unlock function.
func (m *ContextMutex) LockContext(ctx context.Context) (func(), error) {
	// Fail fast on an already-cancelled context even if the lock is free.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-m.ch:
		return func() { m.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the mutex only if it is free.
func (m *ContextMutex) TryLock() (func(), bool) {
	select {
	case <-m.ch:
		return func() { m.ch <- struct{}{} }, true
	default:
		return nil, false
	}
}
