package confnode

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyName       = errors.New("node name is empty")
	ErrEmptyKey        = errors.New("key is empty")
	ErrEmptyValue      = errors.New("value is empty")
	ErrInvalidState    = errors.New("invalid node state")
	ErrDisposed        = errors.New("node is disposed")
	ErrDuplicateChild  = errors.New("duplicate child name")
	ErrAttached        = errors.New("node already has a parent")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrHandleNotSet    = errors.New("resource handle not set")
	ErrNotReadable     = errors.New("resource not readable")
	ErrVersionConflict = errors.New("node version conflict")
	ErrInvalidValue    = errors.New("invalid value")
)

// ConfigurationError is returned for every failure inside a configuration
// tree: bad paths, rejected assignments, illegal state transitions and
// wrapped resource I/O errors.
type ConfigurationError struct {
	Path  string
	State State
	Err   error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Path != "" {
		fmt.Fprintf(&b, ": [path=%s]", e.Path)
	}
	if e.State != Unknown {
		fmt.Fprintf(&b, "[state=%s]", e.State)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func nodeError(n Node, err error) error {
	ce := &ConfigurationError{Err: err}
	if n != nil {
		ce.Path = n.Path()
		ce.State = n.State()
	}
	return ce
}

func errorf(n Node, sentinel error, format string, args ...any) error {
	return nodeError(n, fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)))
}
