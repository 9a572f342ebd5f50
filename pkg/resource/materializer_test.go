package resource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/version"
)

type fixture struct {
	fs   afero.Fs
	m    *Materializer
	srv  *httptest.Server
	hits atomic.Int32
	reg  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{fs: afero.NewMemMapFs(), reg: prometheus.NewRegistry()}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		switch r.URL.Path {
		case "/blob.bin":
			io.WriteString(w, "0123456789")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)

	f.m = New(Options{
		Fs:         f.fs,
		CacheDir:   "/cache",
		Registerer: f.reg,
		Fetchers:   map[string]Fetcher{SchemeHTTP: NewHTTPFetcher(f.srv.Client())},
	})
	return f
}

func (f *fixture) configuration(t *testing.T, policy confnode.DownloadPolicy, resources map[string]string) *confnode.Configuration {
	t.Helper()
	cfg, err := confnode.NewConfiguration("cfg", version.New(1, 0), confnode.Settings{DownloadPolicy: policy})
	require.NoError(t, err)
	root, err := confnode.NewElementNode("root")
	require.NoError(t, err)

	for name, loc := range resources {
		u, err := url.Parse(strings.ReplaceAll(loc, "{srv}", f.srv.URL))
		require.NoError(t, err)
		var r confnode.Resource
		if strings.HasSuffix(name, "blob") {
			r, err = confnode.NewBlobResource(name)
		} else {
			r, err = confnode.NewFileResource(name)
		}
		require.NoError(t, err)
		require.NoError(t, r.SetLocation(u))
		require.NoError(t, root.AddChild(r))
	}
	require.NoError(t, cfg.SetRoot(root))
	return cfg
}

func TestReadBlobOnDemand(t *testing.T) {
	f := newFixture(t)
	cfg := f.configuration(t, confnode.DownloadOnDemand, map[string]string{"blob": "{srv}/blob.bin"})
	ctx := context.Background()

	require.NoError(t, f.m.MaterializeAll(ctx, cfg))
	assert.Equal(t, int32(0), f.hits.Load(), "on demand downloads nothing at load time")

	res, err := f.m.ReadBlob(ctx, cfg, "root.blob", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "234", string(res.Data))
	assert.Equal(t, int32(1), f.hits.Load())

	res, err = f.m.ReadBlob(ctx, cfg, "root.blob", 8, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), res.BytesRead)
	assert.Equal(t, int32(1), f.hits.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.metrics.Downloads.WithLabelValues("http", "ok")))
	assert.Equal(t, 5.0, testutil.ToFloat64(f.m.metrics.BlobReadBytes))

	u, _ := url.Parse(f.srv.URL + "/blob.bin")
	data, err := afero.ReadFile(f.fs, f.m.CachePath(u))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestReadBlobValidatesBeforeIO(t *testing.T) {
	f := newFixture(t)
	cfg := f.configuration(t, confnode.DownloadOnDemand, map[string]string{"blob": "{srv}/blob.bin"})

	_, err := f.m.ReadBlob(context.Background(), cfg, "root.blob", -1, 5)
	assert.ErrorIs(t, err, confnode.ErrInvalidArgument)
	_, err = f.m.ReadBlob(context.Background(), cfg, "root.blob", 0, 0)
	assert.ErrorIs(t, err, confnode.ErrInvalidArgument)
	assert.Equal(t, int32(0), f.hits.Load())

	_, err = f.m.ReadBlob(context.Background(), cfg, "root.missing", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMaterializeOnStartup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "/etc/zconfig/local.pem", []byte("pem"), 0o644))
	cfg := f.configuration(t, confnode.DownloadOnStartup, map[string]string{
		"blob":  "{srv}/blob.bin",
		"local": "file:///etc/zconfig/local.pem",
		"other": "s3://bucket/key",
	})

	require.NoError(t, f.m.MaterializeAll(context.Background(), cfg))
	assert.Equal(t, int32(1), f.hits.Load())

	local := cfg.Find("root.local").(*confnode.FileResource)
	assert.Equal(t, "/etc/zconfig/local.pem", local.Handle())
	assert.True(t, cfg.Find("root.blob").(confnode.Resource).HasHandle())
	assert.False(t, cfg.Find("root.other").(confnode.Resource).HasHandle())

	rc, err := f.m.Open(context.Background(), cfg, "root.local")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "pem", string(data))
}

func TestDownloadNever(t *testing.T) {
	f := newFixture(t)
	cfg := f.configuration(t, confnode.DownloadNever, map[string]string{"blob": "{srv}/blob.bin"})

	require.NoError(t, f.m.MaterializeAll(context.Background(), cfg))
	_, err := f.m.ReadBlob(context.Background(), cfg, "root.blob", 0, 1)
	assert.ErrorIs(t, err, ErrDownloadDisabled)
	assert.Equal(t, int32(0), f.hits.Load())
}

func TestDownloadFailureMarksError(t *testing.T) {
	f := newFixture(t)
	cfg := f.configuration(t, confnode.DownloadOnStartup, map[string]string{"blob": "{srv}/missing.bin"})

	err := f.m.MaterializeAll(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)

	blob := cfg.Find("root.blob")
	assert.True(t, blob.HasError())
	assert.Error(t, cfg.MarkLoaded())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.metrics.Downloads.WithLabelValues("http", "error")))

	entries, err := afero.ReadDir(f.fs, "/cache")
	if err == nil {
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), "."), "temp file left behind: %s", e.Name())
		}
	}
}

func TestConcurrentDownloadsShareFetch(t *testing.T) {
	fs := afero.NewMemMapFs()
	release := make(chan struct{})
	var calls atomic.Int32
	slow := FetcherFunc(func(ctx context.Context, u *url.URL, w io.Writer) error {
		calls.Add(1)
		<-release
		_, err := io.WriteString(w, "payload")
		return err
	})
	m := New(Options{Fs: fs, CacheDir: "/cache", Fetchers: map[string]Fetcher{SchemeHTTPS: slow}})

	u, _ := url.Parse("https://example.com/shared.bin")
	blobs := make([]*confnode.BlobResource, 4)
	for i := range blobs {
		b, err := confnode.NewBlobResource("b")
		require.NoError(t, err)
		require.NoError(t, b.SetLocation(u))
		blobs[i] = b
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(blobs))
	for _, b := range blobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Resolve(context.Background(), b, confnode.DownloadOnDemand)
		}()
	}
	for calls.Load() == 0 {
		runtime.Gosched()
	}
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for _, b := range blobs {
		assert.Equal(t, "/cache/example_com/shared_bin", b.Handle())
	}
	assert.LessOrEqual(t, calls.Load(), int32(len(blobs)))
}

func TestUnsupportedScheme(t *testing.T) {
	m := New(Options{Fs: afero.NewMemMapFs(), CacheDir: "/cache"})
	f, err := confnode.NewFileResource("f")
	require.NoError(t, err)
	u, _ := url.Parse("gopher://example.com/x")
	require.NoError(t, f.SetLocation(u))

	err = m.Resolve(context.Background(), f, confnode.DownloadOnDemand)
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
	assert.False(t, f.HasError())
}

func TestOpaqueFileLocation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "data.bin", []byte("abcdef"), 0o644))
	cfg := f.configuration(t, confnode.DownloadOnDemand, map[string]string{"blob": "file:data.bin"})

	require.NoError(t, f.m.MaterializeAll(context.Background(), cfg))
	res, err := f.m.ReadBlob(context.Background(), cfg, "root.blob", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(res.Data))
	assert.Equal(t, "data.bin", res.Path)
}

func TestOpenLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, afero.WriteFile(f.fs, "/etc/zconfig/inc.yaml", []byte("inc"), 0o644))

	read := func(loc string, policy confnode.DownloadPolicy) (string, error) {
		u, err := url.Parse(loc)
		require.NoError(t, err)
		rc, err := f.m.OpenLocation(ctx, u, policy)
		if err != nil {
			return "", err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return string(data), err
	}

	got, err := read("file:///etc/zconfig/inc.yaml", confnode.DownloadNever)
	require.NoError(t, err)
	assert.Equal(t, "inc", got)

	_, err = read(f.srv.URL+"/blob.bin", confnode.DownloadNever)
	assert.ErrorIs(t, err, ErrDownloadDisabled)
	assert.Equal(t, int32(0), f.hits.Load())

	for i := 0; i < 2; i++ {
		got, err = read(f.srv.URL+"/blob.bin", confnode.DownloadOnDemand)
		require.NoError(t, err)
		assert.Equal(t, "0123456789", got)
	}
	assert.Equal(t, int32(1), f.hits.Load())

	_, err = read(f.srv.URL+"/missing.bin", confnode.DownloadOnDemand)
	assert.ErrorIs(t, err, ErrDownloadFailed)

	_, err = read("gopher://example.com/x", confnode.DownloadOnDemand)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
