package confnode

import (
	"errors"
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustElement(t *testing.T, name string) *ElementNode {
	t.Helper()
	n, err := NewElementNode(name)
	require.NoError(t, err)
	return n
}

func mustValue(t *testing.T, name, value string) *ValueNode {
	t.Helper()
	n, err := NewValueNode(name)
	require.NoError(t, err)
	if value != "" {
		require.NoError(t, n.SetValue(value))
	}
	return n
}

// a -> b -> c(value)
func buildABC(t *testing.T) (*ElementNode, *ElementNode, *ValueNode) {
	t.Helper()
	a := mustElement(t, "a")
	b := mustElement(t, "b")
	c := mustValue(t, "c", "42")
	require.NoError(t, b.AddChild(c))
	require.NoError(t, a.AddChild(b))
	return a, b, c
}

func TestNodeVersionCountsMutations(t *testing.T) {
	kv, err := NewKeyValueNode("props")
	require.NoError(t, err)
	assert.Equal(t, int64(0), kv.NodeVersion())
	assert.Equal(t, Unknown, kv.State())

	require.NoError(t, kv.AddKeyValue("a", "1"))
	assert.Equal(t, Loading, kv.State())
	require.NoError(t, kv.AddKeyValue("a", "2"))
	require.NoError(t, kv.SetKeyValues(map[string]string{"x": "1", "y": "2"}))

	removed, err := kv.RemoveKeyValue("x")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = kv.RemoveKeyValue("missing")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, int64(4), kv.NodeVersion())
	v, ok := kv.Get("y")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	_, ok = kv.Get("a")
	assert.False(t, ok, "SetKeyValues replaces the whole mapping")
}

func TestRejectedMutationLeavesVersion(t *testing.T) {
	kv, err := NewKeyValueNode("props")
	require.NoError(t, err)

	err = kv.AddKeyValue("", "v")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrEmptyKey)

	err = kv.SetKeyValues(map[string]string{"": "v"})
	assert.ErrorIs(t, err, ErrEmptyKey)

	assert.Equal(t, int64(0), kv.NodeVersion())
	assert.Equal(t, Unknown, kv.State())
}

func TestDeleteTwice(t *testing.T) {
	n := mustElement(t, "n")
	require.NoError(t, n.AddChild(mustValue(t, "v", "x")))
	before := n.NodeVersion()

	assert.True(t, n.Delete())
	assert.Equal(t, before+1, n.NodeVersion())
	assert.Equal(t, Disposed, n.State())

	assert.False(t, n.Delete())
	assert.Equal(t, before+1, n.NodeVersion())

	err := n.AddChild(mustValue(t, "w", "y"))
	assert.ErrorIs(t, err, ErrDisposed)
	assert.Equal(t, before+1, n.NodeVersion())
}

func TestRemoveChild(t *testing.T) {
	root := mustElement(t, "root")
	child := mustElement(t, "child")
	require.NoError(t, root.AddChild(child))
	require.NoError(t, root.AddChild(mustValue(t, "tail", "t")))

	removed, err := root.RemoveChild("child")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, Disposed, child.State())
	assert.Equal(t, int64(1), child.NodeVersion())
	assert.Nil(t, child.Parent())
	assert.Equal(t, int64(3), root.NodeVersion())
	assert.Equal(t, "tail", root.Children()[0].Name())
	assert.NotNil(t, root.Child("tail"))

	removed, err = root.RemoveChild("child")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, int64(3), root.NodeVersion())
}

func TestAddChildRejectsDuplicateAndAttached(t *testing.T) {
	a, b, _ := buildABC(t)

	err := a.AddChild(mustElement(t, "b"))
	assert.ErrorIs(t, err, ErrDuplicateChild)

	other := mustElement(t, "other")
	err = other.AddChild(b)
	assert.ErrorIs(t, err, ErrAttached)
	assert.Equal(t, int64(0), other.NodeVersion())
}

func TestFind(t *testing.T) {
	a, b, c := buildABC(t)

	assert.Same(t, c, a.Find([]string{"a", "b", "c"}, 0))

	got := a.Find([]string{"a", "b"}, 0)
	assert.Same(t, b, got)
	assert.NotEqual(t, Node(c), got)

	assert.Nil(t, a.Find([]string{"a", "b", "c", "d"}, 0), "a leaf cannot have children")
	assert.Nil(t, a.Find([]string{"a", "x"}, 0))
	assert.Nil(t, a.Find([]string{"z"}, 0))
	assert.Nil(t, a.Find([]string{"a"}, 3))
	assert.Nil(t, a.Find(nil, 0))

	assert.Same(t, c, b.Find([]string{"a", "b", "c"}, 1))
	assert.Equal(t, "a.b.c", c.Path())
}

func TestMarkLoaded(t *testing.T) {
	n := mustElement(t, "n")
	require.NoError(t, n.MarkLoaded())
	assert.Equal(t, Synced, n.State())

	cause := errors.New("download failed")
	n.Fail(cause)
	assert.True(t, n.HasError())
	assert.Equal(t, cause, n.Err())

	err := n.MarkLoaded()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "state=Error")
	assert.Equal(t, Error, n.State())

	require.NoError(t, n.AddChild(mustValue(t, "v", "x")))
	assert.Equal(t, Error, n.State(), "mutation does not clear Error")

	n.Reset()
	assert.Equal(t, Unknown, n.State())
	require.NoError(t, n.MarkLoaded())
}

func TestChildErrorDoesNotPropagate(t *testing.T) {
	a, b, c := buildABC(t)
	c.Fail(errors.New("bad"))

	assert.False(t, a.HasError())
	assert.False(t, b.HasError())
	require.NoError(t, b.MarkLoaded())
	assert.Error(t, c.MarkLoaded())
}

func TestDisposedIsTerminal(t *testing.T) {
	v := mustValue(t, "v", "x")
	assert.True(t, v.Delete())
	v.Fail(errors.New("late"))
	assert.Equal(t, Disposed, v.State())
	assert.ErrorIs(t, v.SetValue("y"), ErrDisposed)
	assert.ErrorIs(t, v.MarkLoaded(), ErrDisposed)
}

func TestExpectVersion(t *testing.T) {
	n := mustElement(t, "n")
	seen := n.NodeVersion()
	require.NoError(t, n.AddChild(mustValue(t, "v", "x")))

	err := n.ExpectVersion(seen)
	assert.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, n.ExpectVersion(seen+1))
}

func TestValueNode(t *testing.T) {
	v, err := NewValueNode("v")
	require.NoError(t, err)

	assert.ErrorIs(t, v.SetValue(""), ErrEmptyValue)
	assert.Equal(t, Unknown, v.State())

	assert.False(t, v.Bool())
	i16, err := v.Int16()
	require.NoError(t, err)
	assert.Equal(t, int16(math.MinInt16), i16)
	i32, _ := v.Int32()
	assert.Equal(t, NoInt32, i32)
	i64, _ := v.Int64()
	assert.Equal(t, NoInt64, i64)
	f32, _ := v.Float32()
	assert.Equal(t, NoFloat32, f32)
	f64, _ := v.Float64()
	assert.Equal(t, NoFloat64, f64)
	d, err := v.Date()
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	require.NoError(t, v.SetValue("TRUE"))
	assert.True(t, v.Bool())
	require.NoError(t, v.SetValue(" true"))
	assert.False(t, v.Bool())

	require.NoError(t, v.SetValue("1234"))
	i32, err = v.Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(1234), i32)
	assert.False(t, v.Bool())

	require.NoError(t, v.SetValue("70000"))
	_, err = v.Int16()
	assert.ErrorIs(t, err, ErrInvalidValue)

	require.NoError(t, v.SetValue("2.5"))
	f64, err = v.Float64()
	require.NoError(t, err)
	assert.Equal(t, 2.5, f64)

	require.NoError(t, v.SetValue("03.14.2024"))
	d, err = v.Date()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC), d)

	require.NoError(t, v.SetValue("03.14.2024 09:26:53"))
	dt, err := v.DateTime()
	require.NoError(t, err)
	assert.Equal(t, 9, dt.Hour())

	_, err = v.Date()
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestResourceTypeIsPinned(t *testing.T) {
	f, err := NewFileResource("f")
	require.NoError(t, err)
	b, err := NewBlobResource("b")
	require.NoError(t, err)

	assert.Equal(t, ResourceFile, f.ResourceType())
	assert.Equal(t, ResourceBlob, b.ResourceType())
	assert.Equal(t, KindResource, b.Kind())

	var r Resource = b
	assert.Equal(t, "BLOB", r.ResourceType().String())
}

func TestSetLocation(t *testing.T) {
	f, err := NewFileResource("f")
	require.NoError(t, err)

	assert.ErrorIs(t, f.SetLocation(nil), ErrInvalidArgument)
	assert.Equal(t, int64(0), f.NodeVersion())

	u, _ := url.Parse("https://example.com/a.bin")
	require.NoError(t, f.SetLocation(u))
	u.Host = "mutated"
	assert.Equal(t, "example.com", f.Location().Host)
	assert.Equal(t, int64(1), f.NodeVersion())
}
