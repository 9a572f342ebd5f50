package confnode

import (
	"fmt"
)

// element carries the audit metadata and node version shared by every
// non-leaf kind. Each successful mutation bumps nodeVersion exactly once.
type element struct {
	base
	createdBy   ModifiedBy
	updatedBy   ModifiedBy
	nodeVersion int64
}

func (e *element) NodeVersion() int64 {
	return e.nodeVersion
}

func (e *element) CreatedBy() ModifiedBy {
	return e.createdBy
}

func (e *element) UpdatedBy() ModifiedBy {
	return e.updatedBy
}

// SetCreatedBy and SetUpdatedBy record audit data only; they are not content
// mutations and leave the node version alone.
func (e *element) SetCreatedBy(m ModifiedBy) error {
	if m.Modifier == "" {
		return fmt.Errorf("%w: created-by modifier is empty", ErrInvalidArgument)
	}
	e.createdBy = m
	return nil
}

func (e *element) SetUpdatedBy(m ModifiedBy) error {
	if m.Modifier == "" {
		return fmt.Errorf("%w: updated-by modifier is empty", ErrInvalidArgument)
	}
	e.updatedBy = m
	return nil
}

// mutate runs apply under the lifecycle gate and bumps the version on success.
// Arguments must be validated by the caller before mutate is entered so a
// rejected call leaves both state and version untouched.
func (e *element) mutate(self Node, apply func()) error {
	if err := e.state.begin(); err != nil {
		return nodeError(self, err)
	}
	apply()
	e.nodeVersion++
	return nil
}

func (e *element) Delete() bool {
	if !e.state.dispose() {
		return false
	}
	e.nodeVersion++
	return true
}

// ElementNode is a container of named children kept in insertion order.
type ElementNode struct {
	element
	children []Node
	index    map[string]int
}

func NewElementNode(name string) (*ElementNode, error) {
	if name == "" {
		return nil, &ConfigurationError{Err: ErrEmptyName}
	}
	return &ElementNode{
		element: element{base: base{name: name}},
		index:   make(map[string]int),
	}, nil
}

func (n *ElementNode) Kind() Kind {
	return KindElement
}

func (n *ElementNode) Path() string {
	return pathOf(n)
}

// ExpectVersion fails when the node moved past the version a caller read.
func (n *ElementNode) ExpectVersion(v int64) error {
	if n.nodeVersion != v {
		return errorf(n, ErrVersionConflict, "expected %d, found %d", v, n.nodeVersion)
	}
	return nil
}

func (n *ElementNode) AddChild(child Node) error {
	if child == nil {
		return errorf(n, ErrInvalidArgument, "nil child")
	}
	if child.Parent() != nil {
		return errorf(n, ErrAttached, "child %q", child.Name())
	}
	if _, exists := n.index[child.Name()]; exists {
		return errorf(n, ErrDuplicateChild, "child %q", child.Name())
	}

	return n.mutate(n, func() {
		n.index[child.Name()] = len(n.children)
		n.children = append(n.children, child)
		child.attach(n)
	})
}

// RemoveChild detaches and deletes the named child. It reports false, and
// changes nothing, when no such child exists.
func (n *ElementNode) RemoveChild(name string) (bool, error) {
	idx, exists := n.index[name]
	if !exists {
		return false, nil
	}

	var removed bool
	err := n.mutate(n, func() {
		child := n.children[idx]
		n.children = append(n.children[:idx], n.children[idx+1:]...)
		delete(n.index, name)
		for i := idx; i < len(n.children); i++ {
			n.index[n.children[i].Name()] = i
		}
		removed = child.Delete()
		child.attach(nil)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (n *ElementNode) Child(name string) Node {
	idx, ok := n.index[name]
	if !ok {
		return nil
	}
	return n.children[idx]
}

func (n *ElementNode) Children() []Node {
	out := make([]Node, len(n.children))
	copy(out, n.children)
	return out
}

func (n *ElementNode) Len() int {
	return len(n.children)
}

func (n *ElementNode) Find(path []string, index int) Node {
	if index < 0 || index >= len(path) || path[index] != n.name {
		return nil
	}
	if index == len(path)-1 {
		return n
	}
	child := n.Child(path[index+1])
	if child == nil {
		return nil
	}
	return child.Find(path, index+1)
}

func (n *ElementNode) MarkLoaded() error {
	return markLoaded(n, &n.state)
}
