// Package memory is an in-process lock coordinator for single-instance
// deployments and tests.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veesix-networks/zconfig/pkg/lock"
	"github.com/veesix-networks/zconfig/pkg/logger"
)

type entry struct {
	token      string
	acquiredAt time.Time
	expiration time.Time
	released   chan struct{}
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

// Coordinator holds locks in a map. With a lease, a lock not released within
// the lease is dropped by the cleanup loop or by the next acquirer.
type Coordinator struct {
	locks  map[string]*entry
	mu     sync.Mutex
	lease  time.Duration
	closed bool
	stop   chan struct{}
	logger *slog.Logger
}

func New(lease time.Duration) *Coordinator {
	c := &Coordinator{
		locks:  make(map[string]*entry),
		lease:  lease,
		stop:   make(chan struct{}),
		logger: logger.Get(logger.LockMemory),
	}

	if lease > 0 {
		go c.cleanup(lease)
	}

	return c
}

func (c *Coordinator) Acquire(ctx context.Context, path string, timeout time.Duration) (*lock.Handle, error) {
	if path == "" {
		return nil, lock.ErrInvalidPath
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, lock.ErrClosed
		}

		now := time.Now()
		e, held := c.locks[path]
		if held && e.expired(now) {
			c.logger.Warn("Dropping expired lock", "path", path, "acquired_at", e.acquiredAt)
			c.drop(path, e)
			held = false
		}
		if !held {
			e = &entry{
				token:      uuid.NewString(),
				acquiredAt: now,
				released:   make(chan struct{}),
			}
			if c.lease > 0 {
				e.expiration = now.Add(c.lease)
			}
			c.locks[path] = e
			c.mu.Unlock()
			return &lock.Handle{Path: path, Token: e.token, AcquiredAt: now}, nil
		}
		released := e.released
		c.mu.Unlock()

		if deadline == nil {
			return nil, lock.ErrTimeout
		}
		select {
		case <-released:
		case <-deadline:
			return nil, lock.ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Coordinator) Release(ctx context.Context, h *lock.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, held := c.locks[h.Path]
	if !held || e.token != h.Token {
		return lock.ErrNotHeld
	}
	c.drop(h.Path, e)
	return nil
}

// Held reports whether path is currently locked. For tests and diagnostics.
func (c *Coordinator) Held(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, held := c.locks[path]
	return held && !e.expired(time.Now())
}

func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	for path, e := range c.locks {
		c.drop(path, e)
	}
	return nil
}

// drop must be called with mu held.
func (c *Coordinator) drop(path string, e *entry) {
	delete(c.locks, path)
	close(e.released)
}

func (c *Coordinator) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Coordinator) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for path, e := range c.locks {
		if e.expired(now) {
			c.drop(path, e)
		}
	}
}
