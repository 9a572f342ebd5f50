package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/logger"
)

var (
	ErrNotFound = errors.New("resource not found")
	ErrNotBlob  = errors.New("node is not a blob resource")
)

const (
	DefaultCacheDir    = "/var/cache/zconfig"
	defaultConcurrency = 4
)

type Options struct {
	Fs          afero.Fs
	CacheDir    string
	Timeout     time.Duration
	Concurrency int
	SFTP        SFTPConfig
	// Fetchers replaces the fetcher registered for a scheme.
	Fetchers   map[string]Fetcher
	Registerer prometheus.Registerer
}

// Materializer resolves resource nodes to local handles. Remote content is
// downloaded into CacheDir under LocalCachePath and reused on later calls.
// Node mutations made here are serialized internally.
type Materializer struct {
	fs          afero.Fs
	cacheDir    string
	concurrency int
	fetchers    map[string]Fetcher
	metrics     *Metrics
	logger      *slog.Logger

	flight singleflight.Group
	mu     sync.Mutex
}

func New(opts Options) *Materializer {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	httpFetcher := NewHTTPFetcher(nil)
	if opts.Timeout > 0 {
		httpFetcher.client.Timeout = opts.Timeout
	}
	fetchers := map[string]Fetcher{
		SchemeHTTP:  httpFetcher,
		SchemeHTTPS: httpFetcher,
		SchemeFTP:   NewFTPFetcher(opts.Timeout),
		SchemeSFTP:  NewSFTPFetcher(withTimeout(opts.SFTP, opts.Timeout)),
	}
	for scheme, f := range opts.Fetchers {
		fetchers[strings.ToLower(scheme)] = f
	}

	return &Materializer{
		fs:          opts.Fs,
		cacheDir:    opts.CacheDir,
		concurrency: opts.Concurrency,
		fetchers:    fetchers,
		metrics:     NewMetrics(opts.Registerer),
		logger:      logger.Get(logger.Resource),
	}
}

func withTimeout(cfg SFTPConfig, d time.Duration) SFTPConfig {
	if cfg.Timeout == 0 {
		cfg.Timeout = d
	}
	return cfg
}

func (m *Materializer) Fs() afero.Fs {
	return m.fs
}

// CachePath is the absolute cache location for a remote URI.
func (m *Materializer) CachePath(u *url.URL) string {
	return path.Join(m.cacheDir, LocalCachePath(u))
}

// Resolve sets the handle of r. File URIs are referenced in place. Remote URIs
// are served from the cache or downloaded, unless policy is Never. A failed
// download puts r in Error; Reset it before retrying.
func (m *Materializer) Resolve(ctx context.Context, r confnode.Resource, policy confnode.DownloadPolicy) error {
	if m.hasHandle(r) {
		return nil
	}
	u := r.Location()
	switch Classify(u) {
	case Local:
		return m.setHandle(r, LocalPath(u))
	case Remote:
	default:
		return &confnode.ConfigurationError{
			Path:  r.Path(),
			State: r.State(),
			Err:   fmt.Errorf("%w: %q", ErrUnsupportedScheme, schemeOf(u)),
		}
	}

	if policy == confnode.DownloadNever {
		return &confnode.ConfigurationError{
			Path:  r.Path(),
			State: r.State(),
			Err:   fmt.Errorf("%w: %s", ErrDownloadDisabled, u.Redacted()),
		}
	}

	local, shared, err := m.cached(ctx, u)
	if err != nil {
		m.mu.Lock()
		r.Fail(err)
		m.mu.Unlock()
		m.logger.Warn("Resource download failed", "path", r.Path(), "location", u.Redacted(), "error", err)
		return &confnode.ConfigurationError{
			Path:  r.Path(),
			State: confnode.Error,
			Err:   fmt.Errorf("%w: %s: %w", ErrDownloadFailed, u.Redacted(), err),
		}
	}
	m.logger.Debug("Resource materialized", "path", r.Path(), "file", local, "shared", shared)
	return m.setHandle(r, local)
}

// cached returns the cache file of a remote URI, downloading it once when it
// is not there yet.
func (m *Materializer) cached(ctx context.Context, u *url.URL) (string, bool, error) {
	local := m.CachePath(u)
	if info, err := m.fs.Stat(local); err == nil && !info.IsDir() {
		m.metrics.CacheHits.Inc()
		m.logger.Debug("Location served from cache", "location", u.Redacted(), "file", local)
		return local, false, nil
	}
	_, err, shared := m.flight.Do(local, func() (any, error) {
		return nil, m.download(ctx, u, local)
	})
	return local, shared, err
}

// OpenLocation opens the content behind u without a resource node: file URIs
// in place, remote ones through the cache. Policy Never refuses remote URIs.
func (m *Materializer) OpenLocation(ctx context.Context, u *url.URL, policy confnode.DownloadPolicy) (io.ReadCloser, error) {
	switch Classify(u) {
	case Local:
		return m.fs.Open(LocalPath(u))
	case Remote:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, schemeOf(u))
	}
	if policy == confnode.DownloadNever {
		return nil, fmt.Errorf("%w: %s", ErrDownloadDisabled, u.Redacted())
	}
	local, _, err := m.cached(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDownloadFailed, u.Redacted(), err)
	}
	return m.fs.Open(local)
}

func (m *Materializer) hasHandle(r confnode.Resource) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return r.HasHandle()
}

func (m *Materializer) setHandle(r confnode.Resource, local string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.HasHandle() {
		return nil
	}
	return r.SetHandle(m.fs, local)
}

// download writes to a temporary file next to local and renames it into
// place, so a partial download never shows up as a cache hit.
func (m *Materializer) download(ctx context.Context, u *url.URL, local string) (err error) {
	scheme := strings.ToLower(u.Scheme)
	fetcher, ok := m.fetchers[scheme]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}

	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.metrics.Downloads.WithLabelValues(scheme, result).Inc()
		m.metrics.DownloadSeconds.WithLabelValues(scheme).Observe(time.Since(start).Seconds())
	}()

	dir := path.Dir(local)
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(m.fs, dir, "."+path.Base(local)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			m.fs.Remove(tmpName)
		}
	}()

	if err := fetcher.Fetch(ctx, u, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := m.fs.Rename(tmpName, local); err != nil {
		return fmt.Errorf("rename into cache: %w", err)
	}
	return nil
}

// MaterializeAll resolves the resources of cfg that its download policy
// allows at load time: local files always, remote ones only for OnStartup.
// Remote resources under OnDemand stay unresolved until first read.
func (m *Materializer) MaterializeAll(ctx context.Context, cfg *confnode.Configuration) error {
	policy := cfg.Settings().DownloadPolicy

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, r := range cfg.Resources() {
		if m.hasHandle(r) {
			continue
		}
		switch Classify(r.Location()) {
		case Local:
		case Remote:
			if policy != confnode.DownloadOnStartup {
				continue
			}
		default:
			m.logger.Warn("Skipping resource with unclassified location", "path", r.Path(), "scheme", schemeOf(r.Location()))
			continue
		}
		g.Go(func() error {
			return m.Resolve(gctx, r, policy)
		})
	}
	return g.Wait()
}

// ReadBlob reads from the blob resource at the dotted path, materializing it
// first when the configuration's policy allows. Arguments are validated
// before any I/O.
func (m *Materializer) ReadBlob(ctx context.Context, cfg *confnode.Configuration, nodePath string, offset int64, length int32) (*confnode.BlobRead, error) {
	n := cfg.Find(nodePath)
	if n == nil {
		return nil, &confnode.ConfigurationError{Path: nodePath, Err: ErrNotFound}
	}
	b, ok := n.(*confnode.BlobResource)
	if !ok {
		return nil, &confnode.ConfigurationError{Path: nodePath, State: n.State(), Err: fmt.Errorf("%w: %s", ErrNotBlob, n.Kind())}
	}
	if offset < 0 || length <= 0 {
		return nil, &confnode.ConfigurationError{
			Path:  nodePath,
			State: b.State(),
			Err:   fmt.Errorf("%w: offset %d, length %d", confnode.ErrInvalidArgument, offset, length),
		}
	}

	if !m.hasHandle(b) {
		if err := m.Resolve(ctx, b, cfg.Settings().DownloadPolicy); err != nil {
			return nil, err
		}
	}

	res, err := b.Read(offset, length)
	if err != nil {
		return nil, err
	}
	m.metrics.BlobReadBytes.Add(float64(res.BytesRead))
	return res, nil
}

// Open returns a reader on the file resource at the dotted path.
func (m *Materializer) Open(ctx context.Context, cfg *confnode.Configuration, nodePath string) (io.ReadCloser, error) {
	n := cfg.Find(nodePath)
	if n == nil {
		return nil, &confnode.ConfigurationError{Path: nodePath, Err: ErrNotFound}
	}
	var f *confnode.FileResource
	switch r := n.(type) {
	case *confnode.FileResource:
		f = r
	case *confnode.BlobResource:
		f = &r.FileResource
	default:
		return nil, &confnode.ConfigurationError{Path: nodePath, State: n.State(), Err: fmt.Errorf("%w: %s is not a resource", confnode.ErrInvalidArgument, n.Kind())}
	}
	if !m.hasHandle(f) {
		if err := m.Resolve(ctx, n.(confnode.Resource), cfg.Settings().DownloadPolicy); err != nil {
			return nil, err
		}
	}
	return f.Open()
}

func schemeOf(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme
}
