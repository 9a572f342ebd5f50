package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/lock"
	"github.com/veesix-networks/zconfig/pkg/resource"
)

const fullConfig = `
instance:
  name: edge-1
  id-generator: nanoid
logging:
  format: json
  level: debug
  components:
    lock: warn
coordination:
  backend: sqlite
  connection: /tmp/zconfig/locks.db
  root-path: prod
  lock-timeout: 2s
  retry:
    kind: exponential
    sleep-time-ms: 100
    max-retries: 3
resources:
  cache-dir: /tmp/zconfig/cache
  download-policy: OnStartup
  sftp:
    known-hosts: /etc/ssh/ssh_known_hosts
store:
  path: /tmp/zconfig/opdb.db
metrics:
  address: ":9100"
configurations:
  - name: app-config
    path: configs/app.yaml
    version: "2.1"
    group: payments
    application: api
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "edge-1", cfg.Instance.Name)
	assert.Equal(t, "nanoid", cfg.Instance.IDGenerator)
	assert.Equal(t, "warn", cfg.Logging.Components["lock"])
	assert.Equal(t, BackendSQLite, cfg.Coordination.Backend)
	assert.Equal(t, 2*time.Second, cfg.Coordination.LockTimeout)
	assert.Equal(t, "/etc/ssh/ssh_known_hosts", cfg.Resources.SFTP.KnownHosts)

	policy, err := cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, lock.RetryExponential, policy.Kind())
	assert.Equal(t, 3, policy.MaxRetries())

	dp, err := cfg.DownloadPolicy()
	require.NoError(t, err)
	assert.Equal(t, confnode.DownloadOnStartup, dp)

	require.Len(t, cfg.Configurations, 1)
	assert.Equal(t, "yaml", cfg.Configurations[0].Format)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("instance:\n  name: solo\n"))
	require.NoError(t, err)

	assert.Equal(t, DefaultIDGenerator, cfg.Instance.IDGenerator)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, BackendMemory, cfg.Coordination.Backend)
	assert.Equal(t, DefaultLockTimeout, cfg.Coordination.LockTimeout)
	assert.Equal(t, resource.DefaultCacheDir, cfg.Resources.CacheDir)

	policy, err := cfg.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, lock.DefaultRetryPolicy(), policy)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing instance",
			yaml:    "logging:\n  level: info\n",
			wantErr: "instance.name is required",
		},
		{
			name:    "unknown generator",
			yaml:    "instance:\n  name: a\n  id-generator: serial\n",
			wantErr: "instance.id-generator",
		},
		{
			name:    "exponential without retries",
			yaml:    "instance:\n  name: a\ncoordination:\n  retry:\n    kind: exponential\n    sleep-time-ms: 10\n",
			wantErr: "coordination.retry",
		},
		{
			name:    "exponential without sleep",
			yaml:    "instance:\n  name: a\ncoordination:\n  retry:\n    kind: exponential\n    max-retries: 2\n",
			wantErr: "coordination.retry",
		},
		{
			name:    "sqlite without connection",
			yaml:    "instance:\n  name: a\ncoordination:\n  backend: sqlite\n",
			wantErr: "coordination.connection is required",
		},
		{
			name:    "unknown backend",
			yaml:    "instance:\n  name: a\ncoordination:\n  backend: zookeeper\n",
			wantErr: "coordination.backend",
		},
		{
			name:    "bad download policy",
			yaml:    "instance:\n  name: a\nresources:\n  download-policy: sometimes\n",
			wantErr: "resources.download-policy",
		},
		{
			name:    "bad version",
			yaml:    "instance:\n  name: a\nconfigurations:\n  - name: c\n    path: c.yaml\n    version: x\n",
			wantErr: "configurations[0].version",
		},
		{
			name:    "unknown format",
			yaml:    "instance:\n  name: a\nconfigurations:\n  - name: c\n    path: c.yaml\n    version: \"1\"\n    format: toml\n",
			wantErr: "configurations[0].format",
		},
		{
			name:    "application without group",
			yaml:    "instance:\n  name: a\nconfigurations:\n  - name: c\n    path: c.yaml\n    version: \"1\"\n    application: api\n",
			wantErr: "requires a group",
		},
		{
			name: "duplicate configuration",
			yaml: "instance:\n  name: a\nconfigurations:\n" +
				"  - {name: c, path: c.yaml, version: \"1\"}\n" +
				"  - {name: c, path: d.yaml, version: \"2\"}\n",
			wantErr: "duplicate configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRetryErrorIsCoordinationError(t *testing.T) {
	_, err := Parse([]byte("instance:\n  name: a\ncoordination:\n  retry:\n    kind: exponential\n"))
	var ce *lock.CoordinationError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, lock.ErrInvalidRetry)
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zconfig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	out := filepath.Join(dir, "saved.yaml")
	require.NoError(t, Save(out, cfg))
	again, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}
