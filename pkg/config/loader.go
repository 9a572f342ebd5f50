package config

import (
	"fmt"
	"os"
	"time"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/lock"
	"github.com/veesix-networks/zconfig/pkg/parser"
	"github.com/veesix-networks/zconfig/pkg/resource"
	"github.com/veesix-networks/zconfig/pkg/version"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLockTimeout = 5 * time.Second
	DefaultIDGenerator = "uuid"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Instance.IDGenerator == "" {
		c.Instance.IDGenerator = DefaultIDGenerator
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Coordination.Backend == "" {
		c.Coordination.Backend = BackendMemory
	}
	if c.Coordination.LockTimeout == 0 {
		c.Coordination.LockTimeout = DefaultLockTimeout
	}
	if c.Resources.CacheDir == "" {
		c.Resources.CacheDir = resource.DefaultCacheDir
	}
	if c.Resources.DownloadPolicy == "" {
		c.Resources.DownloadPolicy = string(confnode.DownloadOnDemand)
	}
	for i := range c.Configurations {
		if c.Configurations[i].Format == "" {
			c.Configurations[i].Format = parser.KindYAML
		}
	}
}

func (c *Config) Validate() error {
	if c.Instance.Name == "" {
		return fmt.Errorf("instance.name is required")
	}
	switch c.Instance.IDGenerator {
	case "uuid", "nanoid":
	default:
		return fmt.Errorf("instance.id-generator: unknown generator '%s'", c.Instance.IDGenerator)
	}

	if _, err := lock.NewRetryPolicy(c.Coordination.Retry); err != nil {
		return fmt.Errorf("coordination.retry: %w", err)
	}
	if _, err := lock.NewPaths(c.Coordination.RootPath, c.Instance.Name); err != nil {
		return fmt.Errorf("coordination.root-path: %w", err)
	}
	switch c.Coordination.Backend {
	case BackendMemory:
	case BackendSQLite, BackendNATS:
		if c.Coordination.Connection == "" {
			return fmt.Errorf("coordination.connection is required for backend '%s'", c.Coordination.Backend)
		}
	default:
		return fmt.Errorf("coordination.backend: unknown backend '%s'", c.Coordination.Backend)
	}
	if c.Coordination.LockTimeout < 0 {
		return fmt.Errorf("coordination.lock-timeout must not be negative")
	}

	if _, err := c.DownloadPolicy(); err != nil {
		return fmt.Errorf("resources.download-policy: %w", err)
	}
	if c.Resources.Concurrency < 0 {
		return fmt.Errorf("resources.concurrency must not be negative")
	}

	seen := make(map[string]struct{}, len(c.Configurations))
	for i, cc := range c.Configurations {
		if cc.Name == "" {
			return fmt.Errorf("configurations[%d].name is required", i)
		}
		if cc.Path == "" {
			return fmt.Errorf("configurations[%d].path is required", i)
		}
		if _, err := version.Parse(cc.Version); err != nil {
			return fmt.Errorf("configurations[%d].version: %w", i, err)
		}
		if _, err := parser.New(cc.Format); err != nil {
			return fmt.Errorf("configurations[%d].format: %w", i, err)
		}
		if cc.Application != "" && cc.Group == "" {
			return fmt.Errorf("configurations[%d].application '%s' requires a group", i, cc.Application)
		}
		key := cc.Group + "/" + cc.Application + "/" + cc.Name
		if _, dup := seen[key]; dup {
			return fmt.Errorf("configurations[%d]: duplicate configuration '%s'", i, key)
		}
		seen[key] = struct{}{}
	}

	return nil
}

func (c *Config) DownloadPolicy() (confnode.DownloadPolicy, error) {
	return confnode.ParseDownloadPolicy(c.Resources.DownloadPolicy)
}

func (c *Config) RetryPolicy() (lock.RetryPolicy, error) {
	return lock.NewRetryPolicy(c.Coordination.Retry)
}
