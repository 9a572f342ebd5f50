package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type absPath string

func (p absPath) AbsolutePath() string { return string(p) }

func TestPaths(t *testing.T) {
	p, err := NewPaths("", "node1")
	require.NoError(t, err)
	assert.Equal(t, "/ZCONFIG-SERVER/node1", p.ServerRoot())

	p, err = NewPaths("prod", "node1")
	require.NoError(t, err)
	assert.Equal(t, "/ZCONFIG-SERVER/prod/node1", p.ServerRoot())

	p, err = NewPaths("/prod", "node1")
	require.NoError(t, err)
	assert.Equal(t, "/ZCONFIG-SERVER/prod/node1", p.ServerRoot())

	assert.Equal(t, "/ZCONFIG-SERVER/prod/node1/__LOCKS__/__ROOT_LOCK__", p.System())

	// The entity's absolute path is appended verbatim: the doubled separator
	// is part of the persisted layout.
	assert.Equal(t, "/ZCONFIG-SERVER/prod/node1/__LOCKS__//payments", p.ForEntity(absPath("/payments")))
	assert.Equal(t, "/ZCONFIG-SERVER/prod/node1/__LOCKS__//payments/api/cfg/3",
		p.ForConfiguration(absPath("/payments/api/cfg"), 3))

	_, err = NewPaths("prod", "")
	var ce *CoordinationError
	assert.ErrorAs(t, err, &ce)
}

func TestRetryPolicyDefaults(t *testing.T) {
	p, err := NewRetryPolicy(RetryConfig{})
	require.NoError(t, err)
	assert.Equal(t, RetryFixed, p.Kind())
	assert.Equal(t, time.Second, p.Sleep())
	assert.Equal(t, 1, p.MaxRetries())
	assert.Equal(t, uint(2), p.MaxTries())
	assert.Equal(t, DefaultRetryPolicy(), p)

	p, err = NewRetryPolicy(RetryConfig{Kind: RetryFixed})
	require.NoError(t, err)
	assert.Equal(t, DefaultRetryPolicy(), p)

	b := p.NewBackOff()
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestRetryPolicyValidation(t *testing.T) {
	zero, three, negative := 0, 3, -1
	tests := []struct {
		name string
		cfg  RetryConfig
		ok   bool
	}{
		{"exponential missing sleep", RetryConfig{Kind: RetryExponential, MaxRetries: &three}, false},
		{"exponential missing retries", RetryConfig{Kind: RetryExponential, SleepTimeMs: 100}, false},
		{"exponential negative retries", RetryConfig{Kind: RetryExponential, SleepTimeMs: 100, MaxRetries: &negative}, false},
		{"exponential zero retries", RetryConfig{Kind: RetryExponential, SleepTimeMs: 100, MaxRetries: &zero}, true},
		{"exponential lower case", RetryConfig{Kind: "exponential", SleepTimeMs: 100, MaxRetries: &three}, true},
		{"fixed negative sleep", RetryConfig{Kind: RetryFixed, SleepTimeMs: -5}, false},
		{"unknown kind", RetryConfig{Kind: "Linear"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRetryPolicy(tt.cfg)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRetry)
			var ce *CoordinationError
			assert.ErrorAs(t, err, &ce)
			assert.Equal(t, "configure", ce.Op)
		})
	}
}

func TestExponentialBackOffBounds(t *testing.T) {
	three := 3
	p, err := NewRetryPolicy(RetryConfig{Kind: RetryExponential, SleepTimeMs: 10, MaxRetries: &three, MaxSleepMs: 50})
	require.NoError(t, err)
	b := p.NewBackOff()
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 50*time.Millisecond)
	}
}

// fakeCoordinator fails the first failures acquires, then grants.
type fakeCoordinator struct {
	mu         sync.Mutex
	failures   int
	failWith   error
	attempts   int
	released   []string
	releaseErr error
}

func (f *fakeCoordinator) Acquire(ctx context.Context, path string, timeout time.Duration) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return nil, f.failWith
	}
	return &Handle{Path: path, Token: "t", AcquiredAt: time.Now()}, nil
}

func (f *fakeCoordinator) Release(ctx context.Context, h *Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.released = append(f.released, h.Path)
	return f.releaseErr
}

func (f *fakeCoordinator) Close() error { return nil }

func fastRetry(t *testing.T, retries int) RetryPolicy {
	t.Helper()
	p, err := NewRetryPolicy(RetryConfig{Kind: RetryFixed, SleepTimeMs: 1, MaxRetries: &retries})
	require.NoError(t, err)
	return p
}

func TestLockerRetriesWithinBudget(t *testing.T) {
	fake := &fakeCoordinator{failures: 2, failWith: ErrTimeout}
	reg := prometheus.NewRegistry()
	l := NewLocker(fake, Options{Retry: fastRetry(t, 2), Metrics: NewMetrics(reg)})

	h, err := l.Acquire(context.Background(), "/p")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.attempts)
	assert.Equal(t, 2.0, testutil.ToFloat64(l.metrics.Retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.metrics.Held))

	require.NoError(t, l.Release(context.Background(), h))
	assert.Equal(t, 0.0, testutil.ToFloat64(l.metrics.Held))
}

func TestLockerGivesUpAfterBudget(t *testing.T) {
	fake := &fakeCoordinator{failures: 10, failWith: ErrTimeout}
	l := NewLocker(fake, Options{Retry: fastRetry(t, 1)})

	_, err := l.Acquire(context.Background(), "/p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	var ce *CoordinationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "/p", ce.Path)
	assert.Equal(t, 2, fake.attempts)
}

func TestLockerDoesNotRetryPermanent(t *testing.T) {
	fake := &fakeCoordinator{failures: 10, failWith: ErrClosed}
	l := NewLocker(fake, Options{Retry: fastRetry(t, 5)})

	_, err := l.Acquire(context.Background(), "/p")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 1, fake.attempts)
}

func TestWithLockReleasesOnEveryPath(t *testing.T) {
	paths, err := NewPaths("", "n1")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		fake := &fakeCoordinator{}
		l := NewLocker(fake, Options{Paths: paths})
		require.NoError(t, l.WithSystemLock(context.Background(), func(ctx context.Context) error { return nil }))
		assert.Equal(t, []string{paths.System()}, fake.released)
	})

	t.Run("error", func(t *testing.T) {
		fake := &fakeCoordinator{}
		l := NewLocker(fake, Options{Paths: paths})
		boom := errors.New("boom")
		err := l.WithEntityLock(context.Background(), absPath("/g"), func(ctx context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{paths.ForEntity(absPath("/g"))}, fake.released)
	})

	t.Run("panic", func(t *testing.T) {
		fake := &fakeCoordinator{}
		l := NewLocker(fake, Options{Paths: paths})
		assert.Panics(t, func() {
			l.WithConfigurationLock(context.Background(), absPath("/g/a/c"), 2, func(ctx context.Context) error {
				panic("fault")
			})
		})
		assert.Equal(t, []string{paths.ForConfiguration(absPath("/g/a/c"), 2)}, fake.released)
	})

	t.Run("cancelled context", func(t *testing.T) {
		fake := &fakeCoordinator{}
		l := NewLocker(fake, Options{Paths: paths})
		ctx, cancel := context.WithCancel(context.Background())
		err := l.WithSystemLock(ctx, func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, fake.released, 1)
	})

	t.Run("release failure joined", func(t *testing.T) {
		fake := &fakeCoordinator{releaseErr: ErrNotHeld}
		l := NewLocker(fake, Options{Paths: paths})
		err := l.WithSystemLock(context.Background(), func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrNotHeld)
	})
}

func TestAcquireRejectsEmptyPath(t *testing.T) {
	l := NewLocker(&fakeCoordinator{}, Options{})
	_, err := l.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	err = l.WithConfigurationLock(context.Background(), absPath("/x"), -1, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidPath)
}
