package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSFTPPort = "22"

var ErrNoKnownHosts = errors.New("sftp requires a known_hosts file")

type SFTPConfig struct {
	KnownHostsFile string
	PrivateKeyFile string
	User           string
	Timeout        time.Duration
}

// SFTPFetcher verifies host keys against KnownHostsFile. Authentication uses
// the URI password when present, otherwise PrivateKeyFile.
type SFTPFetcher struct {
	cfg SFTPConfig
}

func NewSFTPFetcher(cfg SFTPConfig) *SFTPFetcher {
	return &SFTPFetcher{cfg: cfg}
}

func (f *SFTPFetcher) clientConfig(u *url.URL) (*ssh.ClientConfig, error) {
	if f.cfg.KnownHostsFile == "" {
		return nil, ErrNoKnownHosts
	}
	hostKeys, err := knownhosts.New(f.cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	user := f.cfg.User
	var auth []ssh.AuthMethod
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			user = name
		}
		if p, ok := u.User.Password(); ok {
			auth = append(auth, ssh.Password(p))
		}
	}
	if f.cfg.PrivateKeyFile != "" {
		key, err := os.ReadFile(f.cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if user == "" {
		return nil, fmt.Errorf("sftp %s: no user", u.Host)
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp %s: no password or private key", u.Host)
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         f.cfg.Timeout,
	}, nil
}

func (f *SFTPFetcher) Fetch(ctx context.Context, u *url.URL, w io.Writer) error {
	cfg, err := f.clientConfig(u)
	if err != nil {
		return err
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultSFTPPort)
	}
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		return fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("sftp session %s: %w", addr, err)
	}
	defer client.Close()

	src, err := client.Open(u.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", u.Path, err)
	}
	defer src.Close()

	if _, err := src.WriteTo(w); err != nil {
		return fmt.Errorf("read %s: %w", u.Path, err)
	}
	return nil
}
