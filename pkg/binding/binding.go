// Package binding maps named fields to configuration paths through a table
// registered once, so a typed view over a tree is a lookup plus a conversion.
package binding

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/veesix-networks/zconfig/pkg/confnode"
)

var (
	ErrDuplicateField = errors.New("duplicate field")
	ErrMissingField   = errors.New("required field missing")
	ErrNotScalar      = errors.New("field does not resolve to a value node")
)

type Field struct {
	ID       string
	Path     string
	Required bool
}

// Table is immutable after NewTable.
type Table struct {
	fields []Field
	byID   map[string]int
}

func NewTable(fields ...Field) (*Table, error) {
	t := &Table{byID: make(map[string]int, len(fields))}
	for _, f := range fields {
		if f.ID == "" {
			return nil, fmt.Errorf("binding: field with path %q has no id", f.Path)
		}
		if len(confnode.SplitPath(f.Path)) == 0 {
			return nil, fmt.Errorf("binding: field %s has no path", f.ID)
		}
		if _, ok := t.byID[f.ID]; ok {
			return nil, fmt.Errorf("binding: %w: %s", ErrDuplicateField, f.ID)
		}
		t.byID[f.ID] = len(t.fields)
		t.fields = append(t.fields, f)
	}
	return t, nil
}

// MustTable panics on an invalid table. For package-level registrations.
func MustTable(fields ...Field) *Table {
	t, err := NewTable(fields...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

func (t *Table) Field(id string) (Field, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// Resolve looks every field up starting at root. Field paths are relative to
// root, so the first segment of each path is the name of a child of root.
func (t *Table) Resolve(root confnode.Node) (Values, error) {
	values := make(Values, len(t.fields))
	for _, f := range t.fields {
		var n confnode.Node
		if root != nil {
			parts := append([]string{root.Name()}, confnode.SplitPath(f.Path)...)
			n = root.Find(parts, 0)
		}
		if n == nil {
			if f.Required {
				return nil, &confnode.ConfigurationError{
					Path: f.Path,
					Err:  fmt.Errorf("%w: %s", ErrMissingField, f.ID),
				}
			}
			continue
		}
		v, ok := n.(*confnode.ValueNode)
		if !ok {
			return nil, &confnode.ConfigurationError{
				Path:  n.Path(),
				State: n.State(),
				Err:   fmt.Errorf("%w: %s is a %s node", ErrNotScalar, f.ID, n.Kind()),
			}
		}
		values[f.ID] = v.Value()
	}
	return values, nil
}

// Values holds the raw strings resolved for each present field.
type Values map[string]string

func (v Values) Has(id string) bool {
	_, ok := v[id]
	return ok
}

func (v Values) String(id string) string {
	return v[id]
}

func (v Values) Bool(id string) (bool, error) {
	if !v.Has(id) {
		return false, nil
	}
	return cast.ToBoolE(v[id])
}

func (v Values) Int(id string) (int, error) {
	if !v.Has(id) {
		return 0, nil
	}
	return cast.ToIntE(v[id])
}

func (v Values) Int64(id string) (int64, error) {
	if !v.Has(id) {
		return 0, nil
	}
	return cast.ToInt64E(v[id])
}

func (v Values) Float64(id string) (float64, error) {
	if !v.Has(id) {
		return 0, nil
	}
	return cast.ToFloat64E(v[id])
}

func (v Values) Duration(id string) (time.Duration, error) {
	if !v.Has(id) {
		return 0, nil
	}
	return cast.ToDurationE(v[id])
}

// Time accepts the node date-time layout in addition to the formats cast
// understands.
func (v Values) Time(id string) (time.Time, error) {
	if !v.Has(id) {
		return time.Time{}, nil
	}
	raw := v[id]
	for _, layout := range []string{confnode.DefaultDateTimeFormat, confnode.DefaultDateFormat} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return cast.ToTimeE(raw)
}
