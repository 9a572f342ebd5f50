// Package confnode implements the configuration node tree: a closed set of
// node kinds (element, key/value, value, file and blob resources) addressed
// by dotted paths, each with its own lifecycle state and, for element kinds,
// a monotonic node version.
//
// Nodes are not safe for concurrent mutation. Callers serialize writes to a
// node, typically by reading NodeVersion, mutating, and checking the version
// with ExpectVersion before publishing.
package confnode

import (
	"strings"
	"time"
)

type Kind uint8

const (
	KindElement Kind = iota + 1
	KindKeyValue
	KindValue
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindKeyValue:
		return "keyvalue"
	case KindValue:
		return "value"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Node is implemented only by the types in this package.
type Node interface {
	Name() string
	Kind() Kind
	// Parent is a navigation edge only; the parent owns the child, never
	// the reverse.
	Parent() Node
	Path() string
	State() State
	HasError() bool
	Find(path []string, index int) Node
	MarkLoaded() error
	Fail(err error)
	Reset()
	Delete() bool

	attach(parent Node)
}

type ModifiedBy struct {
	Modifier  string    `yaml:"user" json:"user"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}

func (m ModifiedBy) IsZero() bool {
	return m.Modifier == "" && m.Timestamp.IsZero()
}

type base struct {
	name   string
	parent Node
	state  NodeState
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Parent() Node {
	return b.parent
}

func (b *base) State() State {
	return b.state.State()
}

func (b *base) HasError() bool {
	return b.state.HasError()
}

// Err returns the cause recorded when the node entered Error.
func (b *base) Err() error {
	return b.state.Err()
}

func (b *base) Fail(err error) {
	b.state.fail(err)
}

func (b *base) Reset() {
	b.state.reset()
}

func (b *base) Delete() bool {
	return b.state.dispose()
}

func (b *base) attach(parent Node) {
	b.parent = parent
}

// pathOf builds the dotted path from the root down to n.
func pathOf(n Node) string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent() {
		parts = append(parts, cur.Name())
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// findTerminal matches nodes that cannot have children below them: the
// segment must match and must be the last one in the path.
func findTerminal(n Node, path []string, index int) Node {
	if index < 0 || index >= len(path) {
		return nil
	}
	if path[index] == n.Name() && index == len(path)-1 {
		return n
	}
	return nil
}

func markLoaded(n Node, s *NodeState) error {
	if err := s.markLoaded(); err != nil {
		return nodeError(n, err)
	}
	return nil
}

// SplitPath splits a dotted path into segments, dropping empty ones.
func SplitPath(path string) []string {
	raw := strings.Split(path, ".")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
