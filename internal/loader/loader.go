// Package loader parses the configurations named in the bootstrap file,
// materializes their resources and publishes them to the catalog.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/veesix-networks/zconfig/internal/catalog"
	"github.com/veesix-networks/zconfig/pkg/component"
	"github.com/veesix-networks/zconfig/pkg/config"
	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/logger"
	"github.com/veesix-networks/zconfig/pkg/parser"
	"github.com/veesix-networks/zconfig/pkg/resource"
	"github.com/veesix-networks/zconfig/pkg/version"
)

const modifier = "zconfig-loader"

var ErrHeaderConflict = errors.New("header disagrees with bootstrap entry")

type Options struct {
	Entries      []config.Configuration
	Policy       confnode.DownloadPolicy
	Catalog      *catalog.Catalog
	Materializer *resource.Materializer
	Fs           afero.Fs
}

type Component struct {
	*component.Base
	logger *slog.Logger
	opts   Options
	ready  atomic.Bool
	mu     sync.RWMutex
	loaded map[string]*confnode.Configuration
	failed map[string]error
}

func New(opts Options) *Component {
	if opts.Fs == nil {
		opts.Fs = opts.Materializer.Fs()
	}
	if opts.Policy == "" {
		opts.Policy = confnode.DownloadOnDemand
	}
	return &Component{
		Base:   component.NewBase("loader"),
		logger: logger.Get(logger.Loader),
		opts:   opts,
		loaded: make(map[string]*confnode.Configuration),
		failed: make(map[string]error),
	}
}

func NewFromDeps(deps component.Dependencies, cat *catalog.Catalog) (*Component, error) {
	policy, err := deps.Config.DownloadPolicy()
	if err != nil {
		return nil, err
	}
	return New(Options{
		Entries:      deps.Config.Configurations,
		Policy:       policy,
		Catalog:      cat,
		Materializer: deps.Env.Materializer,
	}), nil
}

// Start loads in the background. Ready turns true once every entry has been
// attempted, whether or not it succeeded.
func (c *Component) Start(ctx context.Context) error {
	c.StartContext(ctx)
	c.logger.Info("Starting loader", "configurations", len(c.opts.Entries))
	c.Go(func() {
		c.LoadAll(c.Ctx)
		c.ready.Store(true)
	})
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	c.logger.Info("Stopping loader")
	c.StopContext()
	return nil
}

func (c *Component) Ready() bool {
	return c.ready.Load()
}

// LoadAll processes every entry and returns the failures joined. One failing
// entry does not stop the others.
func (c *Component) LoadAll(ctx context.Context) error {
	var errs []error
	for _, entry := range c.opts.Entries {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		cfg, err := c.Load(ctx, entry)
		c.mu.Lock()
		if err != nil {
			c.failed[entry.Name] = err
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name, err))
		} else {
			delete(c.failed, entry.Name)
			c.loaded[cfg.AbsolutePath()] = cfg
		}
		c.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Load parses, materializes and publishes one entry. A version that is
// already published is kept as the loaded tree without a new record.
func (c *Component) Load(ctx context.Context, entry config.Configuration) (*confnode.Configuration, error) {
	log := logger.WithEntity(c.logger, logger.EntityAttrs{
		Group:         entry.Group,
		Application:   entry.Application,
		Configuration: entry.Name,
		Version:       entry.Version,
	})

	cfg, err := c.parse(ctx, entry)
	if err != nil {
		log.Error("Failed to parse configuration", "file", entry.Path, "error", err)
		return nil, err
	}

	if h := cfg.Header(); h.Group != "" {
		if err := c.opts.Catalog.EnsureApplication(ctx, h.Group, h.Application, modifier); err != nil {
			return nil, err
		}
	}

	if err := c.opts.Materializer.MaterializeAll(ctx, cfg); err != nil {
		log.Error("Failed to materialize resources", "error", err)
		return nil, err
	}

	rec, err := c.opts.Catalog.PublishConfiguration(ctx, cfg, modifier)
	switch {
	case errors.Is(err, catalog.ErrStaleVersion):
		log.Info("Configuration version already published", "error", err)
		if err := cfg.MarkLoaded(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		log.Info("Loaded configuration", "path", rec.Path, "resources", len(rec.Resources))
	}
	return cfg, nil
}

func (c *Component) parse(ctx context.Context, entry config.Configuration) (*confnode.Configuration, error) {
	v, err := version.Parse(entry.Version)
	if err != nil {
		return nil, err
	}
	p, err := parser.New(entry.Format)
	if err != nil {
		return nil, err
	}
	if inc, ok := p.(parser.Includer); ok {
		inc.SetIncludeResolver(func(u *url.URL) (io.ReadCloser, error) {
			return c.opts.Materializer.OpenLocation(ctx, u, c.opts.Policy)
		})
	}

	f, err := c.opts.Fs.Open(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", entry.Path, err)
	}
	defer f.Close()

	if err := p.Parse(entry.Name, f, confnode.Settings{DownloadPolicy: c.opts.Policy}, v); err != nil {
		return nil, err
	}
	cfg := p.Configuration()

	h := cfg.Header()
	if entry.Group != "" {
		if h.Group != "" && h.Group != entry.Group {
			return nil, fmt.Errorf("%w: group %q vs %q", ErrHeaderConflict, h.Group, entry.Group)
		}
		h.Group = entry.Group
	}
	if entry.Application != "" {
		if h.Application != "" && h.Application != entry.Application {
			return nil, fmt.Errorf("%w: application %q vs %q", ErrHeaderConflict, h.Application, entry.Application)
		}
		h.Application = entry.Application
	}
	cfg.SetHeader(h)
	return cfg, nil
}

// Configuration returns a loaded tree by absolute path.
func (c *Component) Configuration(path string) (*confnode.Configuration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.loaded[path]
	return cfg, ok
}

// Failures reports entries whose last load failed, by name.
func (c *Component) Failures() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]error, len(c.failed))
	for k, v := range c.failed {
		out[k] = v
	}
	return out
}
