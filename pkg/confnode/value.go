package confnode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDateFormat     = "01.02.2006"
	DefaultDateTimeFormat = DefaultDateFormat + " 15:04:05"
)

// Sentinels returned by the typed accessors when the node holds no value.
const (
	NoInt16   int16   = math.MinInt16
	NoInt32   int32   = math.MinInt32
	NoInt64   int64   = math.MinInt64
	NoFloat32 float32 = math.SmallestNonzeroFloat32
	NoFloat64 float64 = math.SmallestNonzeroFloat64
)

// ValueNode is a leaf holding a single non-empty string. Typed accessors
// parse on every call.
type ValueNode struct {
	base
	value string
}

func NewValueNode(name string) (*ValueNode, error) {
	if name == "" {
		return nil, &ConfigurationError{Err: ErrEmptyName}
	}
	return &ValueNode{base: base{name: name}}, nil
}

func (n *ValueNode) Kind() Kind {
	return KindValue
}

func (n *ValueNode) Path() string {
	return pathOf(n)
}

func (n *ValueNode) SetValue(value string) error {
	if value == "" {
		return nodeError(n, ErrEmptyValue)
	}
	if err := n.state.begin(); err != nil {
		return nodeError(n, err)
	}
	n.value = value
	return nil
}

func (n *ValueNode) Value() string {
	return n.value
}

func (n *ValueNode) HasValue() bool {
	return n.value != ""
}

// Bool is true only for a case-insensitive "true"; anything else, including
// surrounding whitespace, is false.
func (n *ValueNode) Bool() bool {
	return strings.EqualFold(n.value, "true")
}

func (n *ValueNode) Int16() (int16, error) {
	if n.value == "" {
		return NoInt16, nil
	}
	v, err := strconv.ParseInt(n.value, 10, 16)
	if err != nil {
		return 0, n.parseError("int16", err)
	}
	return int16(v), nil
}

func (n *ValueNode) Int32() (int32, error) {
	if n.value == "" {
		return NoInt32, nil
	}
	v, err := strconv.ParseInt(n.value, 10, 32)
	if err != nil {
		return 0, n.parseError("int32", err)
	}
	return int32(v), nil
}

func (n *ValueNode) Int64() (int64, error) {
	if n.value == "" {
		return NoInt64, nil
	}
	v, err := strconv.ParseInt(n.value, 10, 64)
	if err != nil {
		return 0, n.parseError("int64", err)
	}
	return v, nil
}

func (n *ValueNode) Float32() (float32, error) {
	if n.value == "" {
		return NoFloat32, nil
	}
	v, err := strconv.ParseFloat(n.value, 32)
	if err != nil {
		return 0, n.parseError("float32", err)
	}
	return float32(v), nil
}

func (n *ValueNode) Float64() (float64, error) {
	if n.value == "" {
		return NoFloat64, nil
	}
	v, err := strconv.ParseFloat(n.value, 64)
	if err != nil {
		return 0, n.parseError("float64", err)
	}
	return v, nil
}

// Date parses DefaultDateFormat. An empty node yields the zero time.
func (n *ValueNode) Date() (time.Time, error) {
	return n.DateLayout(DefaultDateFormat)
}

func (n *ValueNode) DateTime() (time.Time, error) {
	return n.DateLayout(DefaultDateTimeFormat)
}

func (n *ValueNode) DateLayout(layout string) (time.Time, error) {
	if layout == "" {
		return time.Time{}, errorf(n, ErrInvalidArgument, "empty date layout")
	}
	if n.value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(layout, n.value)
	if err != nil {
		return time.Time{}, n.parseError("date", err)
	}
	return t, nil
}

func (n *ValueNode) parseError(kind string, err error) error {
	return nodeError(n, fmt.Errorf("%w: %q is not a valid %s: %v", ErrInvalidValue, n.value, kind, err))
}

func (n *ValueNode) Find(path []string, index int) Node {
	return findTerminal(n, path, index)
}

func (n *ValueNode) MarkLoaded() error {
	return markLoaded(n, &n.state)
}
