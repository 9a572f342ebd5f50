package resource

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultFTPPort = "21"

type FTPFetcher struct {
	Timeout time.Duration
}

func NewFTPFetcher(timeout time.Duration) *FTPFetcher {
	return &FTPFetcher{Timeout: timeout}
}

// Fetch logs in with the URI credentials, or anonymously when none are given.
func (f *FTPFetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) error {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultFTPPort)
	}

	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if f.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(f.Timeout))
	}
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return fmt.Errorf("login %s: %w", addr, err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return fmt.Errorf("retr %s: %w", u.Path, err)
	}
	defer resp.Close()

	if _, err := io.Copy(w, resp); err != nil {
		return fmt.Errorf("read %s: %w", u.Path, err)
	}
	return nil
}
