package confnode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/zconfig/pkg/version"
)

func newTestConfiguration(t *testing.T) *Configuration {
	t.Helper()
	cfg, err := NewConfiguration("app-config", version.New(2, 1), Settings{})
	require.NoError(t, err)

	root := mustElement(t, "configuration")
	db := mustElement(t, "database")
	require.NoError(t, db.AddChild(mustValue(t, "host", "db.local")))
	props, err := NewKeyValueNode("options")
	require.NoError(t, err)
	require.NoError(t, props.AddKeyValue("pool", "10"))
	require.NoError(t, db.AddChild(props))
	blob, err := NewBlobResource("schema")
	require.NoError(t, err)
	require.NoError(t, db.AddChild(blob))
	file, err := NewFileResource("certs")
	require.NoError(t, err)
	require.NoError(t, root.AddChild(db))
	require.NoError(t, root.AddChild(file))
	require.NoError(t, cfg.SetRoot(root))
	return cfg
}

func TestConfigurationFind(t *testing.T) {
	cfg := newTestConfiguration(t)

	n := cfg.Find("configuration.database.host")
	require.NotNil(t, n)
	assert.Equal(t, "db.local", n.(*ValueNode).Value())

	n = cfg.Find("configuration.database.schema")
	require.NotNil(t, n)
	_, ok := n.(*BlobResource)
	assert.True(t, ok)

	assert.Nil(t, cfg.Find("configuration.database.host.extra"))
	assert.Nil(t, cfg.Find("database.host"))
	assert.Nil(t, cfg.Find(""))
}

func TestConfigurationDefaults(t *testing.T) {
	cfg := newTestConfiguration(t)
	assert.Equal(t, DownloadOnDemand, cfg.Settings().DownloadPolicy)
	assert.Equal(t, "/app-config", cfg.AbsolutePath())

	cfg.SetHeader(Header{Group: "payments", Application: "api"})
	assert.Equal(t, "/payments/api/app-config", cfg.AbsolutePath())

	_, err := NewConfiguration("", version.New(1, 0), Settings{})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestConfigurationResourcesInDocumentOrder(t *testing.T) {
	cfg := newTestConfiguration(t)
	res := cfg.Resources()
	require.Len(t, res, 2)
	assert.Equal(t, "schema", res[0].Name())
	assert.Equal(t, "certs", res[1].Name())
}

func TestConfigurationMarkLoaded(t *testing.T) {
	cfg := newTestConfiguration(t)

	cfg.Find("configuration.database.options").Fail(errors.New("broken"))
	err := cfg.MarkLoaded()
	require.Error(t, err)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "configuration.database.options", ce.Path)
	assert.NotEqual(t, Synced, cfg.Root().State(), "nothing is marked when a node failed")

	cfg.Find("configuration.database.options").Reset()
	require.NoError(t, cfg.MarkLoaded())
	cfg.Walk(func(n Node) error {
		assert.Equal(t, Synced, n.State(), n.Path())
		return nil
	})
}

func TestParseDownloadPolicy(t *testing.T) {
	for in, want := range map[string]DownloadPolicy{
		"OnStartup": DownloadOnStartup,
		"ondemand":  DownloadOnDemand,
		"":          DownloadOnDemand,
		"Never":     DownloadNever,
	} {
		got, err := ParseDownloadPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseDownloadPolicy("sometimes")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
