package confnode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/veesix-networks/zconfig/pkg/version"
)

type DownloadPolicy string

const (
	DownloadOnStartup DownloadPolicy = "OnStartup"
	DownloadOnDemand  DownloadPolicy = "OnDemand"
	DownloadNever     DownloadPolicy = "Never"
)

func ParseDownloadPolicy(s string) (DownloadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "onstartup", "on-startup", "startup":
		return DownloadOnStartup, nil
	case "", "ondemand", "on-demand", "demand":
		return DownloadOnDemand, nil
	case "never":
		return DownloadNever, nil
	}
	return "", fmt.Errorf("%w: unknown download policy %q", ErrInvalidArgument, s)
}

type Settings struct {
	DownloadPolicy DownloadPolicy
}

func DefaultSettings() Settings {
	return Settings{DownloadPolicy: DownloadOnDemand}
}

// Header is the descriptive metadata carried alongside a configuration tree.
type Header struct {
	ID          string
	Group       string
	Application string
	Description string
	CreatedBy   ModifiedBy
	UpdatedBy   ModifiedBy
}

// Configuration is one parsed, versioned configuration tree.
type Configuration struct {
	name     string
	version  version.Version
	settings Settings
	header   Header
	root     *ElementNode
}

func NewConfiguration(name string, v version.Version, settings Settings) (*Configuration, error) {
	if name == "" {
		return nil, &ConfigurationError{Err: fmt.Errorf("%w: configuration name", ErrEmptyName)}
	}
	if settings.DownloadPolicy == "" {
		settings.DownloadPolicy = DownloadOnDemand
	}
	return &Configuration{
		name:     name,
		version:  v,
		settings: settings,
	}, nil
}

func (c *Configuration) Name() string {
	return c.name
}

func (c *Configuration) Version() version.Version {
	return c.version
}

func (c *Configuration) Settings() Settings {
	return c.settings
}

func (c *Configuration) Header() Header {
	return c.header
}

func (c *Configuration) SetHeader(h Header) {
	c.header = h
}

func (c *Configuration) Root() *ElementNode {
	return c.root
}

func (c *Configuration) SetRoot(root *ElementNode) error {
	if root == nil {
		return &ConfigurationError{Path: c.name, Err: fmt.Errorf("%w: nil root", ErrInvalidArgument)}
	}
	if root.Parent() != nil {
		return &ConfigurationError{Path: c.name, Err: ErrAttached}
	}
	c.root = root
	return nil
}

// AbsolutePath is "/<group>/<application>/<name>", skipping empty segments.
func (c *Configuration) AbsolutePath() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.header.Group, c.header.Application, c.name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return "/" + strings.Join(parts, "/")
}

// Find resolves a dotted path whose first segment is the root node name.
// It returns nil when nothing matches.
func (c *Configuration) Find(path string) Node {
	if c.root == nil {
		return nil
	}
	parts := SplitPath(path)
	if len(parts) == 0 {
		return nil
	}
	return c.root.Find(parts, 0)
}

// SkipWalk returned from a Walk callback ends the walk without error.
var SkipWalk = errors.New("skip walk")

// Walk visits the tree depth-first in document order.
func (c *Configuration) Walk(fn func(Node) error) error {
	if c.root == nil {
		return nil
	}
	err := walk(c.root, fn)
	if errors.Is(err, SkipWalk) {
		return nil
	}
	return err
}

func walk(n Node, fn func(Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	if e, ok := n.(*ElementNode); ok {
		for _, child := range e.children {
			if err := walk(child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Configuration) Resources() []Resource {
	var out []Resource
	c.Walk(func(n Node) error {
		if r, ok := n.(Resource); ok {
			out = append(out, r)
		}
		return nil
	})
	return out
}

// MarkLoaded marks every node Synced. If any node is in Error nothing is
// changed and the first offending node is reported.
func (c *Configuration) MarkLoaded() error {
	if c.root == nil {
		return &ConfigurationError{Path: c.name, Err: fmt.Errorf("%w: configuration has no root", ErrInvalidState)}
	}

	var failed Node
	c.Walk(func(n Node) error {
		if n.HasError() {
			failed = n
			return SkipWalk
		}
		return nil
	})
	if failed != nil {
		return nodeError(failed, fmt.Errorf("%w: cannot mark configuration %s as loaded", ErrInvalidState, c.name))
	}

	return c.Walk(func(n Node) error {
		return n.MarkLoaded()
	})
}
