// Package env wires the process-wide services every operation runs against:
// instance identity, lock coordination, the operational store, resource
// materialization and metrics.
package env

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"

	"github.com/veesix-networks/zconfig/pkg/config"
	"github.com/veesix-networks/zconfig/pkg/entity"
	"github.com/veesix-networks/zconfig/pkg/lock"
	lockmemory "github.com/veesix-networks/zconfig/pkg/lock/memory"
	"github.com/veesix-networks/zconfig/pkg/lock/natskv"
	locksqlite "github.com/veesix-networks/zconfig/pkg/lock/sqlite"
	"github.com/veesix-networks/zconfig/pkg/logger"
	"github.com/veesix-networks/zconfig/pkg/opdb"
	opdbmemory "github.com/veesix-networks/zconfig/pkg/opdb/memory"
	opdbsqlite "github.com/veesix-networks/zconfig/pkg/opdb/sqlite"
	"github.com/veesix-networks/zconfig/pkg/resource"
)

type Environment struct {
	Platform     Platform
	Instance     Instance
	Paths        lock.Paths
	Coordinator  lock.Coordinator
	Locker       *lock.Locker
	Store        opdb.Store
	Materializer *resource.Materializer
	IDs          entity.IDGenerator
	Registry     *prometheus.Registry

	logger *slog.Logger
}

// Options override pieces Init would otherwise build from the config.
type Options struct {
	Fs afero.Fs
	// Coordinator, when set, is used instead of the configured backend and
	// is closed with the environment.
	Coordinator lock.Coordinator
	Store       opdb.Store
}

func Init(ctx context.Context, cfg *config.Config, opts Options) (_ *Environment, err error) {
	if cfg == nil {
		return nil, &EnvironmentError{Op: "init", Err: errors.New("nil config")}
	}
	log := logger.Get(logger.Env)

	e := &Environment{
		Platform: Current(),
		Registry: prometheus.NewRegistry(),
		logger:   log,
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()
	e.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if e.Instance, err = NewInstance(cfg.Instance.Name); err != nil {
		return nil, err
	}
	if e.Paths, err = lock.NewPaths(cfg.Coordination.RootPath, cfg.Instance.Name); err != nil {
		return nil, &EnvironmentError{Op: "paths", Err: err}
	}
	retry, err := cfg.RetryPolicy()
	if err != nil {
		return nil, &EnvironmentError{Op: "retry", Err: err}
	}
	if e.IDs, err = newIDGenerator(cfg.Instance.IDGenerator); err != nil {
		return nil, &EnvironmentError{Op: "ids", Err: err}
	}

	e.Coordinator = opts.Coordinator
	if e.Coordinator == nil {
		coord, err := newCoordinator(ctx, cfg, e.Instance)
		if err != nil {
			return nil, &EnvironmentError{Op: "coordination", Err: err}
		}
		e.Coordinator = coord
	}
	e.Locker = lock.NewLocker(e.Coordinator, lock.Options{
		Paths:   e.Paths,
		Retry:   retry,
		Timeout: cfg.Coordination.LockTimeout,
		Metrics: lock.NewMetrics(e.Registry),
	})

	e.Store = opts.Store
	if e.Store == nil {
		store, err := newStore(cfg.Store)
		if err != nil {
			return nil, &EnvironmentError{Op: "store", Err: err}
		}
		e.Store = store
	}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	e.Materializer = resource.New(resource.Options{
		Fs:          fs,
		CacheDir:    cfg.Resources.CacheDir,
		Timeout:     cfg.Resources.Timeout,
		Concurrency: cfg.Resources.Concurrency,
		SFTP: resource.SFTPConfig{
			KnownHostsFile: cfg.Resources.SFTP.KnownHosts,
			PrivateKeyFile: cfg.Resources.SFTP.PrivateKey,
			User:           cfg.Resources.SFTP.User,
		},
		Registerer: e.Registry,
	})

	log.Info("Environment ready",
		"instance", e.Instance.Name,
		"id", e.Instance.ID,
		"host", e.Instance.Hostname,
		"ip", e.Instance.IP,
		"platform", e.Platform.OS,
		"backend", cfg.Coordination.Backend,
		"root", e.Paths.ServerRoot(),
		"retry", retry.String())

	return e, nil
}

func newCoordinator(ctx context.Context, cfg *config.Config, inst Instance) (lock.Coordinator, error) {
	c := cfg.Coordination
	owner := inst.Name + "@" + inst.Hostname
	switch c.Backend {
	case config.BackendMemory, "":
		return lockmemory.New(c.Lease), nil
	case config.BackendSQLite:
		coord, err := locksqlite.Open(c.Connection, locksqlite.Options{Owner: owner, Lease: c.Lease})
		if err != nil {
			return nil, err
		}
		return coord, nil
	case config.BackendNATS:
		coord, err := natskv.Connect(ctx, c.Connection, natskv.Options{
			Bucket: c.Bucket,
			Lease:  c.Lease,
			Owner:  owner,
		})
		if err != nil {
			return nil, err
		}
		return coord, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, c.Backend)
}

func newStore(cfg config.Store) (opdb.Store, error) {
	if cfg.Path == "" {
		return opdbmemory.New(), nil
	}
	s, err := opdbsqlite.Open(filepath.Clean(cfg.Path))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newIDGenerator(kind string) (entity.IDGenerator, error) {
	switch kind {
	case "", "uuid":
		return entity.UUIDGenerator{}, nil
	case "nanoid":
		return entity.NanoIDGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown id generator %q", kind)
}

// Close releases the store and the coordinator. It is safe on a partially
// initialized environment.
func (e *Environment) Close() error {
	var errs []error
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if e.Locker != nil {
		if err := e.Locker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close coordinator: %w", err))
		}
	} else if e.Coordinator != nil {
		if err := e.Coordinator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close coordinator: %w", err))
		}
	}
	if len(errs) > 0 {
		return &EnvironmentError{Op: "close", Err: errors.Join(errs...)}
	}
	return nil
}
