// Package natskv coordinates locks across a fleet through a NATS JetStream
// key/value bucket. A lock is a key created with Create, which fails when the
// key already exists. Bucket TTL bounds the life of an orphaned lock.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/veesix-networks/zconfig/pkg/lock"
	"github.com/veesix-networks/zconfig/pkg/logger"
)

const (
	DefaultBucket       = "zconfig_locks"
	DefaultPollInterval = 250 * time.Millisecond
)

type Options struct {
	Bucket string
	// Lease is the bucket TTL. It only applies when this coordinator creates
	// the bucket.
	Lease        time.Duration
	Owner        string
	PollInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.Bucket == "" {
		o.Bucket = DefaultBucket
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
}

type Coordinator struct {
	nc      *nats.Conn
	ownConn bool
	kv      jetstream.KeyValue
	opts    Options
	closed  atomic.Bool
	logger  *slog.Logger
}

// Connect dials url and binds the lock bucket. The connection is closed with
// the coordinator.
func Connect(ctx context.Context, url string, opts Options, natsOpts ...nats.Option) (*Coordinator, error) {
	if url == "" {
		return nil, lock.ErrNoConnection
	}
	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	c, err := New(ctx, nc, opts)
	if err != nil {
		nc.Close()
		return nil, err
	}
	c.ownConn = true
	return c, nil
}

// New binds the lock bucket on an existing connection, creating the bucket
// when it does not exist.
func New(ctx context.Context, nc *nats.Conn, opts Options) (*Coordinator, error) {
	opts.applyDefaults()

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := js.KeyValue(ctx, opts.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      opts.Bucket,
			Description: "zconfig distributed locks",
			TTL:         opts.Lease,
			History:     1,
		})
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = js.KeyValue(ctx, opts.Bucket)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bind bucket %s: %w", opts.Bucket, err)
	}

	return &Coordinator{
		nc:     nc,
		kv:     kv,
		opts:   opts,
		logger: logger.Get(logger.LockNATS),
	}, nil
}

// Key maps a lock path to a valid bucket key.
func Key(path string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(path))
}

func (c *Coordinator) Acquire(ctx context.Context, path string, timeout time.Duration) (*lock.Handle, error) {
	if path == "" {
		return nil, lock.ErrInvalidPath
	}
	if c.closed.Load() {
		return nil, lock.ErrClosed
	}

	key := Key(path)
	h, err := c.tryCreate(ctx, path, key)
	if err != nil || h != nil {
		return h, err
	}
	if timeout <= 0 {
		return nil, lock.ErrTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watcher, err := c.kv.Watch(waitCtx, key, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	defer watcher.Stop()

	// TTL expiry does not produce a delete marker, so poll alongside the watch.
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil, c.waitError(ctx)
			}
			if entry == nil || entry.Operation() == jetstream.KeyValuePut {
				continue
			}
		case <-ticker.C:
		case <-waitCtx.Done():
			return nil, c.waitError(ctx)
		}

		if c.closed.Load() {
			return nil, lock.ErrClosed
		}
		h, err := c.tryCreate(ctx, path, key)
		if err != nil || h != nil {
			return h, err
		}
	}
}

func (c *Coordinator) waitError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return lock.ErrTimeout
}

func (c *Coordinator) tryCreate(ctx context.Context, path, key string) (*lock.Handle, error) {
	token := uuid.NewString()
	rev, err := c.kv.Create(ctx, key, []byte(token+" "+c.opts.Owner))
	if errors.Is(err, jetstream.ErrKeyExists) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock.Handle{Path: path, Token: token, Revision: rev, AcquiredAt: time.Now()}, nil
}

// Release deletes the key only at the revision the handle created, so a
// lock that expired and was taken by someone else is left alone.
func (c *Coordinator) Release(ctx context.Context, h *lock.Handle) error {
	if c.closed.Load() {
		return lock.ErrClosed
	}
	err := c.kv.Delete(ctx, Key(h.Path), jetstream.LastRevision(h.Revision))
	if err == nil {
		return nil
	}

	entry, gerr := c.kv.Get(ctx, Key(h.Path))
	if errors.Is(gerr, jetstream.ErrKeyNotFound) || (gerr == nil && entry.Revision() != h.Revision) {
		c.logger.Warn("Lock lost before release", "path", h.Path, "error", err)
		return lock.ErrNotHeld
	}
	return err
}

func (c *Coordinator) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.ownConn {
		c.nc.Close()
	}
	return nil
}
