// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"sync"
	"time"
)

// Locker grants exclusive, expiring ownership of a named resource across
// engine instances.
type Locker interface {
	// Acquire returns acquired=false without error when someone else holds
	// the resource.
	Acquire(ctx context.Context, resource string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// LocalLocker is a Locker for single-instance deployments without Redis.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

// Acquire implements Locker. Expired holds are taken over.
func (l *LocalLocker) Acquire(_ context.Context, resource string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[resource]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[resource] = until

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[resource].Equal(until) {
			delete(l.held, resource)
		}
		return nil
	}
	return release, true, nil
}
