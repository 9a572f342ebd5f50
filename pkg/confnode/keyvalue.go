package confnode

// KeyValueNode holds an unordered mapping of non-empty keys to values.
type KeyValueNode struct {
	element
	values map[string]string
}

func NewKeyValueNode(name string) (*KeyValueNode, error) {
	if name == "" {
		return nil, &ConfigurationError{Err: ErrEmptyName}
	}
	return &KeyValueNode{
		element: element{base: base{name: name}},
		values:  make(map[string]string),
	}, nil
}

func (n *KeyValueNode) Kind() Kind {
	return KindKeyValue
}

func (n *KeyValueNode) Path() string {
	return pathOf(n)
}

func (n *KeyValueNode) ExpectVersion(v int64) error {
	if n.nodeVersion != v {
		return errorf(n, ErrVersionConflict, "expected %d, found %d", v, n.nodeVersion)
	}
	return nil
}

// SetKeyValues replaces the whole mapping as a single mutation.
func (n *KeyValueNode) SetKeyValues(values map[string]string) error {
	for k := range values {
		if k == "" {
			return nodeError(n, ErrEmptyKey)
		}
	}

	replaced := make(map[string]string, len(values))
	for k, v := range values {
		replaced[k] = v
	}

	return n.mutate(n, func() {
		n.values = replaced
	})
}

func (n *KeyValueNode) KeyValues() map[string]string {
	out := make(map[string]string, len(n.values))
	for k, v := range n.values {
		out[k] = v
	}
	return out
}

func (n *KeyValueNode) Get(key string) (string, bool) {
	v, ok := n.values[key]
	return v, ok
}

func (n *KeyValueNode) Len() int {
	return len(n.values)
}

func (n *KeyValueNode) AddKeyValue(key, value string) error {
	if key == "" {
		return nodeError(n, ErrEmptyKey)
	}
	return n.mutate(n, func() {
		n.values[key] = value
	})
}

// RemoveKeyValue counts as a mutation only when the key existed.
func (n *KeyValueNode) RemoveKeyValue(key string) (bool, error) {
	if key == "" {
		return false, nodeError(n, ErrEmptyKey)
	}
	if _, ok := n.values[key]; !ok {
		return false, nil
	}
	if err := n.mutate(n, func() {
		delete(n.values, key)
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (n *KeyValueNode) Find(path []string, index int) Node {
	return findTerminal(n, path, index)
}

func (n *KeyValueNode) MarkLoaded() error {
	return markLoaded(n, &n.state)
}
