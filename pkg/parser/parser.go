// Package parser turns configuration documents into confnode trees.
package parser

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"

	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/version"
)

var (
	ErrUnknownKind = errors.New("unknown parser kind")
	ErrMalformed   = errors.New("malformed configuration document")
	ErrInclude     = errors.New("cannot include configuration")
)

// MaxIncludeDepth bounds nested includes.
const MaxIncludeDepth = 8

// Parser populates an internally held configuration. A parser instance is
// used for a single document.
type Parser interface {
	Parse(name string, r io.Reader, settings confnode.Settings, v version.Version) error
	Configuration() *confnode.Configuration
}

// IncludeResolver opens the document behind an include location.
type IncludeResolver func(u *url.URL) (io.ReadCloser, error)

// Includer is implemented by parsers that can mount other documents. Without
// a resolver every include fails.
type Includer interface {
	SetIncludeResolver(IncludeResolver)
}

var factories = make(map[string]func() Parser)

func Register(kind string, factory func() Parser) {
	factories[kind] = factory
}

func New(kind string) (Parser, error) {
	factory, exists := factories[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return factory(), nil
}

func List() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
