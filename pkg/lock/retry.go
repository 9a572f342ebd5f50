package lock

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type RetryKind string

const (
	RetryFixed       RetryKind = "Fixed"
	RetryExponential RetryKind = "Exponential"
)

const (
	DefaultRetrySleep = 1000 * time.Millisecond
	DefaultMaxRetries = 1

	// Beyond this many retries the exponential shift overflows.
	maxExponentialRetries = 29
)

// RetryConfig is the user-facing retry setting. MaxRetries is a pointer so
// that an explicit 0 can be told apart from an omitted value.
type RetryConfig struct {
	Kind        RetryKind `yaml:"kind,omitempty"`
	SleepTimeMs int       `yaml:"sleep-time-ms,omitempty"`
	MaxRetries  *int      `yaml:"max-retries,omitempty"`
	MaxSleepMs  int       `yaml:"max-sleep-ms,omitempty"`
}

type RetryPolicy struct {
	kind       RetryKind
	sleep      time.Duration
	maxSleep   time.Duration
	maxRetries int
}

// DefaultRetryPolicy retries once after one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{kind: RetryFixed, sleep: DefaultRetrySleep, maxRetries: DefaultMaxRetries}
}

// NewRetryPolicy validates cfg. Exponential requires a positive sleep time
// and a non-negative retry count; Fixed fills omitted values with defaults.
func NewRetryPolicy(cfg RetryConfig) (RetryPolicy, error) {
	switch RetryKind(strings.ToLower(string(cfg.Kind))) {
	case "", "fixed":
		p := DefaultRetryPolicy()
		if cfg.SleepTimeMs < 0 {
			return RetryPolicy{}, retryError("sleep-time-ms must not be negative, got %d", cfg.SleepTimeMs)
		}
		if cfg.SleepTimeMs > 0 {
			p.sleep = time.Duration(cfg.SleepTimeMs) * time.Millisecond
		}
		if cfg.MaxRetries != nil {
			if *cfg.MaxRetries < 0 {
				return RetryPolicy{}, retryError("max-retries must not be negative, got %d", *cfg.MaxRetries)
			}
			p.maxRetries = *cfg.MaxRetries
		}
		return p, nil

	case "exponential":
		if cfg.SleepTimeMs <= 0 {
			return RetryPolicy{}, retryError("exponential retry requires sleep-time-ms > 0")
		}
		if cfg.MaxRetries == nil {
			return RetryPolicy{}, retryError("exponential retry requires max-retries")
		}
		if *cfg.MaxRetries < 0 {
			return RetryPolicy{}, retryError("max-retries must not be negative, got %d", *cfg.MaxRetries)
		}
		p := RetryPolicy{
			kind:       RetryExponential,
			sleep:      time.Duration(cfg.SleepTimeMs) * time.Millisecond,
			maxRetries: min(*cfg.MaxRetries, maxExponentialRetries),
		}
		if cfg.MaxSleepMs > 0 {
			p.maxSleep = time.Duration(cfg.MaxSleepMs) * time.Millisecond
		}
		return p, nil
	}
	return RetryPolicy{}, retryError("unknown retry kind %q", cfg.Kind)
}

func retryError(format string, args ...any) error {
	return &CoordinationError{Op: "configure", Err: fmt.Errorf("%w: %s", ErrInvalidRetry, fmt.Sprintf(format, args...))}
}

func (p RetryPolicy) Kind() RetryKind {
	return p.kind
}

func (p RetryPolicy) Sleep() time.Duration {
	return p.sleep
}

func (p RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// MaxTries counts the first attempt.
func (p RetryPolicy) MaxTries() uint {
	return uint(p.maxRetries) + 1
}

func (p RetryPolicy) String() string {
	return fmt.Sprintf("%s(sleep=%s, retries=%d)", p.kind, p.sleep, p.maxRetries)
}

func (p RetryPolicy) NewBackOff() backoff.BackOff {
	if p.kind == RetryExponential {
		return &exponentialBackOff{base: p.sleep, max: p.maxSleep}
	}
	return backoff.NewConstantBackOff(p.sleep)
}

// exponentialBackOff sleeps base * rand[1, 2^(n+1)) before retry n, capped
// at max when set.
type exponentialBackOff struct {
	base  time.Duration
	max   time.Duration
	retry int
}

func (b *exponentialBackOff) NextBackOff() time.Duration {
	n := min(b.retry, maxExponentialRetries)
	b.retry++
	d := b.base * time.Duration(max(1, rand.IntN(1<<(n+1))))
	if b.max > 0 && d > b.max {
		d = b.max
	}
	return d
}

func (b *exponentialBackOff) Reset() {
	b.retry = 0
}
