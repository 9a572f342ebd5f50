// Package lock provides fleet-wide mutual exclusion keyed by canonical paths
// derived from the group/application/configuration hierarchy.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/veesix-networks/zconfig/pkg/logger"
)

// Handle identifies one held lock. Token is unique per acquisition and lets
// a backend refuse a release by anyone but the holder.
type Handle struct {
	Path       string
	Token      string
	Revision   uint64
	AcquiredAt time.Time
}

// Coordinator is the capability a coordination backend provides. Acquire
// waits up to timeout for the lock; a timeout <= 0 makes a single attempt.
type Coordinator interface {
	Acquire(ctx context.Context, path string, timeout time.Duration) (*Handle, error)
	Release(ctx context.Context, h *Handle) error
	Close() error
}

const DefaultLockTimeout = 5 * time.Second

type Options struct {
	Paths   Paths
	Retry   RetryPolicy
	Timeout time.Duration
	Metrics *Metrics
}

// Locker runs acquire attempts against a Coordinator under a retry policy.
type Locker struct {
	coord   Coordinator
	paths   Paths
	retry   RetryPolicy
	timeout time.Duration
	metrics *Metrics
	logger  *slog.Logger
}

func NewLocker(coord Coordinator, opts Options) *Locker {
	if opts.Retry.kind == "" {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultLockTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Locker{
		coord:   coord,
		paths:   opts.Paths,
		retry:   opts.Retry,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logger:  logger.Get(logger.Lock),
	}
}

func (l *Locker) Paths() Paths {
	return l.paths
}

func (l *Locker) Coordinator() Coordinator {
	return l.coord
}

// Acquire returns once the lock at path is held or the retry budget is spent.
// Closed coordinators, invalid paths and context cancellation are not retried.
func (l *Locker) Acquire(ctx context.Context, path string) (*Handle, error) {
	if path == "" {
		return nil, &CoordinationError{Op: "acquire", Err: ErrInvalidPath}
	}

	start := time.Now()
	attempt := 0
	h, err := backoff.Retry(ctx, func() (*Handle, error) {
		attempt++
		h, err := l.coord.Acquire(ctx, path, l.timeout)
		if err == nil {
			return h, nil
		}
		if errors.Is(err, ErrClosed) || errors.Is(err, ErrInvalidPath) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(l.retry.NewBackOff()),
		backoff.WithMaxTries(l.retry.MaxTries()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.metrics.Retries.Inc()
			l.logger.Debug("Lock attempt failed, retrying", "path", path, "attempt", attempt, "next", next, "error", err)
		}),
	)
	if err != nil {
		l.metrics.Acquires.WithLabelValues("error").Inc()
		l.logger.Warn("Failed to acquire lock", "path", path, "attempts", attempt, "policy", l.retry.String(), "error", err)
		var ce *CoordinationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &CoordinationError{Op: "acquire", Path: path, Err: err}
	}

	l.metrics.Acquires.WithLabelValues("ok").Inc()
	l.metrics.WaitSeconds.Observe(time.Since(start).Seconds())
	l.metrics.Held.Inc()
	l.logger.Debug("Acquired lock", "path", path, "attempts", attempt)
	return h, nil
}

func (l *Locker) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return &CoordinationError{Op: "release", Err: ErrNotHeld}
	}
	if err := l.coord.Release(ctx, h); err != nil {
		l.logger.Error("Failed to release lock", "path", h.Path, "error", err)
		var ce *CoordinationError
		if errors.As(err, &ce) {
			return err
		}
		return &CoordinationError{Op: "release", Path: h.Path, Err: err}
	}
	l.metrics.Held.Dec()
	l.logger.Debug("Released lock", "path", h.Path, "held", time.Since(h.AcquiredAt))
	return nil
}

// WithLock runs fn while holding the lock at path. The lock is released on
// every exit from fn, including a panic, and a release failure is joined to
// fn's error.
func (l *Locker) WithLock(ctx context.Context, path string, fn func(ctx context.Context) error) (err error) {
	h, err := l.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		// Release must run even when ctx is already cancelled.
		if rerr := l.Release(context.WithoutCancel(ctx), h); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn(ctx)
}

func (l *Locker) WithEntityLock(ctx context.Context, e Entity, fn func(ctx context.Context) error) error {
	return l.WithLock(ctx, l.paths.ForEntity(e), fn)
}

func (l *Locker) WithConfigurationLock(ctx context.Context, e Entity, major int, fn func(ctx context.Context) error) error {
	if major < 0 {
		return &CoordinationError{Op: "acquire", Err: fmt.Errorf("%w: negative major version %d", ErrInvalidPath, major)}
	}
	return l.WithLock(ctx, l.paths.ForConfiguration(e, major), fn)
}

func (l *Locker) WithSystemLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return l.WithLock(ctx, l.paths.System(), fn)
}

func (l *Locker) Close() error {
	return l.coord.Close()
}
