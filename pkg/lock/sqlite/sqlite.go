// Package sqlite coordinates locks between processes on one host through a
// shared sqlite database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/veesix-networks/zconfig/pkg/lock"
	"github.com/veesix-networks/zconfig/pkg/logger"
)

const DefaultPollInterval = 50 * time.Millisecond

type Options struct {
	// Owner is recorded with each lock row for diagnostics.
	Owner string
	// Lease bounds how long a row survives a holder that never releases.
	// Zero disables expiry.
	Lease        time.Duration
	PollInterval time.Duration
}

type Coordinator struct {
	db     *sql.DB
	opts   Options
	closed atomic.Bool
	logger *slog.Logger
}

func Open(path string, opts Options) (*Coordinator, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", p, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS locks (
			path TEXT NOT NULL PRIMARY KEY,
			token TEXT NOT NULL,
			owner TEXT NOT NULL,
			acquired_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Coordinator{db: db, opts: opts, logger: logger.Get(logger.LockSQLite)}, nil
}

func (c *Coordinator) Acquire(ctx context.Context, path string, timeout time.Duration) (*lock.Handle, error) {
	if path == "" {
		return nil, lock.ErrInvalidPath
	}
	deadline := time.Now().Add(timeout)

	for {
		if c.closed.Load() {
			return nil, lock.ErrClosed
		}
		h, err := c.tryAcquire(ctx, path)
		if err != nil || h != nil {
			return h, err
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			return nil, lock.ErrTimeout
		}

		wait := min(c.opts.PollInterval, time.Until(deadline))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// tryAcquire returns a nil handle and nil error when the lock is held by
// someone else.
func (c *Coordinator) tryAcquire(ctx context.Context, path string) (*lock.Handle, error) {
	now := time.Now()
	nowMs := now.UnixMilli()

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM locks WHERE path = ? AND expires_at > 0 AND expires_at <= ?
	`, path, nowMs)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.logger.Warn("Dropped expired lock", "path", path)
	}

	var expires int64
	if c.opts.Lease > 0 {
		expires = now.Add(c.opts.Lease).UnixMilli()
	}
	token := uuid.NewString()
	res, err = c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO locks (path, token, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, path, token, c.opts.Owner, nowMs, expires)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return &lock.Handle{Path: path, Token: token, AcquiredAt: now}, nil
}

func (c *Coordinator) Release(ctx context.Context, h *lock.Handle) error {
	if c.closed.Load() {
		return lock.ErrClosed
	}
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM locks WHERE path = ? AND token = ?
	`, h.Path, h.Token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return lock.ErrNotHeld
	}
	return nil
}

// Holder returns the owner recorded for path, or "" when it is free.
func (c *Coordinator) Holder(ctx context.Context, path string) (string, error) {
	var owner string
	err := c.db.QueryRowContext(ctx, `
		SELECT owner FROM locks WHERE path = ? AND (expires_at = 0 OR expires_at > ?)
	`, path, time.Now().UnixMilli()).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return owner, err
}

func (c *Coordinator) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.db.Close()
}
