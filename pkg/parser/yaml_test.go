package parser

import (
	"io"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/version"
)

const sampleDoc = `
header:
  id: cfg-42
  group: payments
  application: api
  description: payments api settings
  created:
    by: alice
    at: "03.14.2024 09:26:53"
configuration:
  database:
    host: db.local
    port: 5432
    options: !properties
      pool: 10
      ssl: "on"
    schema: !blob https://config.example.com/app/v1/schema.bin?env=prod
  certs: !file file:///etc/zconfig/certs.pem
  servers:
    - alpha
    - beta
  empty:
`

func parseSample(t *testing.T) *confnode.Configuration {
	t.Helper()
	p, err := New(KindYAML)
	require.NoError(t, err)
	require.NoError(t, p.Parse("app-config", strings.NewReader(sampleDoc), confnode.DefaultSettings(), version.New(3, 1)))
	return p.Configuration()
}

func TestYAMLTree(t *testing.T) {
	cfg := parseSample(t)
	require.NotNil(t, cfg)

	assert.Equal(t, "configuration", cfg.Root().Name())
	assert.Equal(t, version.New(3, 1), cfg.Version())

	host := cfg.Find("configuration.database.host")
	require.IsType(t, &confnode.ValueNode{}, host)
	assert.Equal(t, "db.local", host.(*confnode.ValueNode).Value())

	port, err := cfg.Find("configuration.database.port").(*confnode.ValueNode).Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(5432), port)

	opts := cfg.Find("configuration.database.options")
	require.IsType(t, &confnode.KeyValueNode{}, opts)
	pool, ok := opts.(*confnode.KeyValueNode).Get("pool")
	assert.True(t, ok)
	assert.Equal(t, "10", pool)
	assert.Equal(t, int64(1), opts.(*confnode.KeyValueNode).NodeVersion())

	second := cfg.Find("configuration.servers.1")
	require.NotNil(t, second)
	assert.Equal(t, "beta", second.(*confnode.ValueNode).Value())

	empty := cfg.Find("configuration.empty")
	require.IsType(t, &confnode.ValueNode{}, empty)
	assert.False(t, empty.(*confnode.ValueNode).HasValue())
}

func TestYAMLResources(t *testing.T) {
	cfg := parseSample(t)

	res := cfg.Resources()
	require.Len(t, res, 2)

	blob, ok := res[0].(*confnode.BlobResource)
	require.True(t, ok)
	assert.Equal(t, confnode.ResourceBlob, blob.ResourceType())
	assert.Equal(t, "config.example.com", blob.Location().Host)
	assert.Equal(t, "env=prod", blob.Location().RawQuery)

	file, ok := res[1].(*confnode.FileResource)
	require.True(t, ok)
	assert.Equal(t, "file", file.Location().Scheme)
	assert.Equal(t, "/etc/zconfig/certs.pem", file.Location().Path)
}

func TestYAMLHeader(t *testing.T) {
	cfg := parseSample(t)
	h := cfg.Header()

	assert.Equal(t, "cfg-42", h.ID)
	assert.Equal(t, "payments", h.Group)
	assert.Equal(t, "api", h.Application)
	assert.Equal(t, "alice", h.CreatedBy.Modifier)
	assert.Equal(t, time.Date(2024, time.March, 14, 9, 26, 53, 0, time.UTC), h.CreatedBy.Timestamp)
	assert.True(t, h.UpdatedBy.IsZero())
	assert.Equal(t, "/payments/api/app-config", cfg.AbsolutePath())
}

func TestYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"scalar top", "just text", "top level must be a mapping"},
		{"two roots", "a: {x: 1}\nb: {y: 2}\n", "more than one root element"},
		{"header only", "header: {id: x}\n", "no root element"},
		{"properties not mapping", "root:\n  p: !properties nope\n", "requires a mapping"},
		{"nested properties", "root:\n  p: !properties\n    k: [1, 2]\n", "must be a scalar"},
		{"resource without location", "root:\n  f: !file\n", "requires a location"},
		{"scalar root", "root: 5\n", "expected a mapping or sequence"},
		{"bad header date", "header:\n  created: {at: yesterday}\nroot: {}\n", "header created"},
		{"dotted key", "root:\n  a.b: 1\n", "must not contain"},
		{"dotted root", "a.b:\n  x: 1\n", "must not contain"},
		{"include without resolver", "root:\n  inc: !include file:///inc.yaml\n", "no include resolver"},
		{"include without location", "root:\n  inc: !include\n", "requires a location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewYAML()
			err := p.Parse("doc", strings.NewReader(tt.doc), confnode.Settings{}, version.New(1, 0))
			require.Error(t, err)
			var ce *confnode.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "line ")
			assert.Nil(t, p.Configuration())
		})
	}
}

func TestYAMLEmptyInput(t *testing.T) {
	err := NewYAML().Parse("doc", strings.NewReader(""), confnode.Settings{}, version.New(1, 0))
	assert.ErrorIs(t, err, ErrMalformed)

	err = NewYAML().Parse("", strings.NewReader("a: {}"), confnode.Settings{}, version.New(1, 0))
	assert.ErrorIs(t, err, confnode.ErrEmptyName)
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, List(), KindYAML)
	_, err := New("xml")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

const includingDoc = `
configuration:
  name: outer
  node_1: !include file:///configs/included.yaml
`

const includedDoc = `
header:
  group: ignored
root-node:
  node_1:
    node_2:
      node_3:
        node_4: !properties
          a: "1"
          b: "2"
          c: "3"
  data: !blob file:///configs/data.bin
`

func fsResolver(fs afero.Fs) IncludeResolver {
	return func(u *url.URL) (io.ReadCloser, error) {
		return fs.Open(u.Path)
	}
}

func TestYAMLInclude(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/configs/included.yaml", []byte(includedDoc), 0o644))

	p := NewYAML()
	p.SetIncludeResolver(fsResolver(fs))
	require.NoError(t, p.Parse("outer", strings.NewReader(includingDoc), confnode.DefaultSettings(), version.New(1, 0)))
	cfg := p.Configuration()

	n := cfg.Find("configuration.node_1.root-node.node_1.node_2.node_3.node_4")
	require.IsType(t, &confnode.KeyValueNode{}, n)
	assert.Len(t, n.(*confnode.KeyValueNode).KeyValues(), 3)
	assert.Equal(t, "configuration.node_1.root-node.node_1.node_2.node_3.node_4", n.Path())

	require.Len(t, cfg.Resources(), 1)
	assert.Equal(t, "/configs/data.bin", cfg.Resources()[0].Location().Path)
	assert.Empty(t, cfg.Header().Group)
}

func TestYAMLIncludeErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/configs/self.yaml",
		[]byte("root:\n  again: !include file:///configs/self.yaml\n"), 0o644))

	parse := func(doc string) error {
		p := NewYAML()
		p.SetIncludeResolver(fsResolver(fs))
		return p.Parse("doc", strings.NewReader(doc), confnode.Settings{}, version.New(1, 0))
	}

	err := parse("root:\n  inc: !include file:///configs/self.yaml\n")
	assert.ErrorIs(t, err, ErrInclude)
	assert.ErrorContains(t, err, "includes itself")

	err = parse("root:\n  inc: !include file:///configs/missing.yaml\n")
	assert.ErrorIs(t, err, ErrInclude)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
