package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/afero"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported resource scheme")
	ErrDownloadDisabled  = errors.New("resource download disabled")
	ErrDownloadFailed    = errors.New("resource download failed")
)

// Fetcher copies the content behind a URI into w.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL, w io.Writer) error
}

type FetcherFunc func(ctx context.Context, u *url.URL, w io.Writer) error

func (f FetcherFunc) Fetch(ctx context.Context, u *url.URL, w io.Writer) error {
	return f(ctx, u, w)
}

type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher uses a pooled cleanhttp client when client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: unexpected status %s", u.Redacted(), resp.Status)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return nil
}

// FileFetcher copies a file URI from fs. Used when a local resource has to
// be copied rather than referenced in place.
type FileFetcher struct {
	fs afero.Fs
}

func NewFileFetcher(fs afero.Fs) *FileFetcher {
	return &FileFetcher{fs: fs}
}

func (f *FileFetcher) Fetch(_ context.Context, u *url.URL, w io.Writer) error {
	src, err := f.fs.Open(LocalPath(u))
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}
