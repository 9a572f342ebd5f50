package config

import (
	"time"

	"github.com/veesix-networks/zconfig/pkg/lock"
)

type Config struct {
	Instance       Instance        `yaml:"instance"`
	Logging        Logging         `yaml:"logging"`
	Coordination   Coordination    `yaml:"coordination"`
	Resources      Resources       `yaml:"resources"`
	Store          Store           `yaml:"store"`
	Metrics        Metrics         `yaml:"metrics,omitempty"`
	Configurations []Configuration `yaml:"configurations,omitempty"`
}

type Instance struct {
	Name string `yaml:"name"`
	// IDGenerator selects how entity identities are issued: uuid or nanoid.
	IDGenerator string `yaml:"id-generator,omitempty"`
}

type Logging struct {
	Format     string            `yaml:"format"`
	Level      string            `yaml:"level"`
	Components map[string]string `yaml:"components,omitempty"`
}

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
	BackendNATS   Backend = "nats"
)

type Coordination struct {
	Backend Backend `yaml:"backend"`
	// Connection is a sqlite file path or a NATS server URL.
	Connection  string           `yaml:"connection,omitempty"`
	RootPath    string           `yaml:"root-path,omitempty"`
	LockTimeout time.Duration    `yaml:"lock-timeout,omitempty"`
	Lease       time.Duration    `yaml:"lease,omitempty"`
	Bucket      string           `yaml:"bucket,omitempty"`
	Retry       lock.RetryConfig `yaml:"retry,omitempty"`
}

type Resources struct {
	CacheDir       string        `yaml:"cache-dir,omitempty"`
	DownloadPolicy string        `yaml:"download-policy,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	Concurrency    int           `yaml:"concurrency,omitempty"`
	SFTP           SFTP          `yaml:"sftp,omitempty"`
}

type SFTP struct {
	KnownHosts string `yaml:"known-hosts,omitempty"`
	PrivateKey string `yaml:"private-key,omitempty"`
	User       string `yaml:"user,omitempty"`
}

type Store struct {
	// Path of the sqlite operational store. Empty keeps records in memory.
	Path string `yaml:"path,omitempty"`
}

type Metrics struct {
	Address string `yaml:"address,omitempty"`
}

// Configuration names a configuration file to parse and publish at startup.
type Configuration struct {
	Name        string `yaml:"name"`
	Path        string `yaml:"path"`
	Version     string `yaml:"version"`
	Group       string `yaml:"group,omitempty"`
	Application string `yaml:"application,omitempty"`
	Format      string `yaml:"format,omitempty"`
}
