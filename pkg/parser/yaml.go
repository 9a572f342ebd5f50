package parser

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veesix-networks/zconfig/pkg/binding"
	"github.com/veesix-networks/zconfig/pkg/confnode"
	"github.com/veesix-networks/zconfig/pkg/logger"
	"github.com/veesix-networks/zconfig/pkg/version"
)

const (
	KindYAML = "yaml"

	TagProperties = "!properties"
	TagFile       = "!file"
	TagBlob       = "!blob"
	TagInclude    = "!include"

	headerKey = "header"
)

var headerTable = binding.MustTable(
	binding.Field{ID: "id", Path: "id"},
	binding.Field{ID: "group", Path: "group"},
	binding.Field{ID: "application", Path: "application"},
	binding.Field{ID: "description", Path: "description"},
	binding.Field{ID: "createdBy", Path: "created.by"},
	binding.Field{ID: "createdAt", Path: "created.at"},
	binding.Field{ID: "updatedBy", Path: "updated.by"},
	binding.Field{ID: "updatedAt", Path: "updated.at"},
)

func init() {
	Register(KindYAML, func() Parser { return NewYAML() })
}

// YAML reads a document with an optional "header" mapping and exactly one
// other top-level key, which names the root element. Mappings become element
// nodes, sequences become element nodes with children named by index, and
// scalars become value nodes. The tags !properties, !file and !blob select
// key/value and resource nodes. !include mounts the root element of another
// document under the tagged key; the included header is ignored.
type YAML struct {
	config   *confnode.Configuration
	includes IncludeResolver
	// locations of the documents including this one, outermost first
	chain []string
}

var _ Includer = (*YAML)(nil)

func NewYAML() *YAML {
	return &YAML{}
}

func (p *YAML) Configuration() *confnode.Configuration {
	return p.config
}

func (p *YAML) SetIncludeResolver(r IncludeResolver) {
	p.includes = r
}

func (p *YAML) Parse(name string, r io.Reader, settings confnode.Settings, v version.Version) error {
	if r == nil {
		return &confnode.ConfigurationError{Path: name, Err: fmt.Errorf("%w: nil reader", confnode.ErrInvalidArgument)}
	}
	cfg, err := confnode.NewConfiguration(name, v, settings)
	if err != nil {
		return err
	}

	root, header, err := p.decode(name, r)
	if err != nil {
		return err
	}
	if err := cfg.SetRoot(root); err != nil {
		return err
	}

	if header != nil {
		h, err := p.header(name, header)
		if err != nil {
			return err
		}
		cfg.SetHeader(h)
	}

	p.config = cfg
	logger.Get(logger.Parser).Debug("Parsed configuration",
		"name", name, "version", v.String(), "root", root.Name(), "resources", len(cfg.Resources()))
	return nil
}

// decode reads one document and builds its root element. The header mapping,
// when present, is returned undecoded.
func (p *YAML) decode(name string, r io.Reader) (*confnode.ElementNode, *yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, &confnode.ConfigurationError{Path: name, Err: fmt.Errorf("%w: empty document", ErrMalformed)}
		}
		return nil, nil, &confnode.ConfigurationError{Path: name, Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}

	top := &doc
	if top.Kind == yaml.DocumentNode && len(top.Content) > 0 {
		top = top.Content[0]
	}
	if top.Kind != yaml.MappingNode {
		return nil, nil, lineError(name, top, "top level must be a mapping")
	}

	var rootKey, rootValue, header *yaml.Node
	for i := 0; i+1 < len(top.Content); i += 2 {
		k, val := top.Content[i], top.Content[i+1]
		if k.Value == headerKey {
			header = val
			continue
		}
		if rootKey != nil {
			return nil, nil, lineError(name, k, "more than one root element (%q and %q)", rootKey.Value, k.Value)
		}
		rootKey, rootValue = k, val
	}
	if rootKey == nil {
		return nil, nil, lineError(name, top, "no root element")
	}
	if strings.Contains(rootKey.Value, ".") {
		return nil, nil, lineError(name, rootKey, "name %q must not contain \".\"", rootKey.Value)
	}

	root, err := confnode.NewElementNode(rootKey.Value)
	if err != nil {
		return nil, nil, lineError(name, rootKey, "%v", err)
	}
	if err := p.fill(root, resolveAlias(rootValue)); err != nil {
		return nil, nil, err
	}
	return root, header, nil
}

// fill adds the children described by n to parent.
func (p *YAML) fill(parent *confnode.ElementNode, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, val := n.Content[i], resolveAlias(n.Content[i+1])
			child, err := p.build(parent, k.Value, k, val)
			if err != nil {
				return err
			}
			if err := parent.AddChild(child); err != nil {
				return wrapAt(k, err)
			}
		}
	case yaml.SequenceNode:
		for i, item := range n.Content {
			item = resolveAlias(item)
			child, err := p.build(parent, strconv.Itoa(i), item, item)
			if err != nil {
				return err
			}
			if err := parent.AddChild(child); err != nil {
				return wrapAt(item, err)
			}
		}
	case yaml.ScalarNode:
		if n.Tag != "!!null" && n.Value != "" {
			return nodeLineError(parent, n, "expected a mapping or sequence, found scalar %q", n.Value)
		}
	default:
		return nodeLineError(parent, n, "unsupported yaml node kind %d", n.Kind)
	}
	return nil
}

func (p *YAML) build(parent *confnode.ElementNode, name string, at, n *yaml.Node) (confnode.Node, error) {
	if strings.Contains(name, ".") {
		return nil, nodeLineError(parent, at, "name %q must not contain \".\"", name)
	}
	switch n.Tag {
	case TagProperties:
		return p.properties(parent, name, n)
	case TagFile, TagBlob:
		return p.resource(parent, name, n)
	case TagInclude:
		return p.include(parent, name, n)
	}

	switch n.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		e, err := confnode.NewElementNode(name)
		if err != nil {
			return nil, nodeLineError(parent, at, "%v", err)
		}
		if err := p.fill(e, n); err != nil {
			return nil, err
		}
		return e, nil
	case yaml.ScalarNode:
		v, err := confnode.NewValueNode(name)
		if err != nil {
			return nil, nodeLineError(parent, at, "%v", err)
		}
		if n.Tag != "!!null" && n.Value != "" {
			if err := v.SetValue(n.Value); err != nil {
				return nil, wrapAt(n, err)
			}
		}
		return v, nil
	}
	return nil, nodeLineError(parent, n, "unsupported yaml node kind %d", n.Kind)
}

func (p *YAML) properties(parent *confnode.ElementNode, name string, n *yaml.Node) (confnode.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nodeLineError(parent, n, "%s on %q requires a mapping", TagProperties, name)
	}
	kv, err := confnode.NewKeyValueNode(name)
	if err != nil {
		return nil, nodeLineError(parent, n, "%v", err)
	}
	values := make(map[string]string, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, val := n.Content[i], resolveAlias(n.Content[i+1])
		if val.Kind != yaml.ScalarNode {
			return nil, nodeLineError(parent, val, "property %s.%s must be a scalar", name, k.Value)
		}
		values[k.Value] = val.Value
	}
	if len(values) == 0 {
		return kv, nil
	}
	if err := kv.SetKeyValues(values); err != nil {
		return nil, wrapAt(n, err)
	}
	return kv, nil
}

func (p *YAML) resource(parent *confnode.ElementNode, name string, n *yaml.Node) (confnode.Node, error) {
	if n.Kind != yaml.ScalarNode || strings.TrimSpace(n.Value) == "" {
		return nil, nodeLineError(parent, n, "%s on %q requires a location", n.Tag, name)
	}
	u, err := url.Parse(strings.TrimSpace(n.Value))
	if err != nil {
		return nil, nodeLineError(parent, n, "invalid location for %q: %v", name, err)
	}

	var r confnode.Resource
	if n.Tag == TagBlob {
		r, err = confnode.NewBlobResource(name)
	} else {
		r, err = confnode.NewFileResource(name)
	}
	if err != nil {
		return nil, nodeLineError(parent, n, "%v", err)
	}
	if err := r.SetLocation(u); err != nil {
		return nil, wrapAt(n, err)
	}
	return r, nil
}

// include parses the document at the tagged location with the same resolver
// and mounts its root element under a new element called name.
func (p *YAML) include(parent *confnode.ElementNode, name string, n *yaml.Node) (confnode.Node, error) {
	if n.Kind != yaml.ScalarNode || strings.TrimSpace(n.Value) == "" {
		return nil, nodeLineError(parent, n, "%s on %q requires a location", TagInclude, name)
	}
	if p.includes == nil {
		return nil, includeError(parent, n, fmt.Errorf("no include resolver for %q", name))
	}
	u, err := url.Parse(strings.TrimSpace(n.Value))
	if err != nil {
		return nil, nodeLineError(parent, n, "invalid location for %q: %v", name, err)
	}
	loc := u.String()
	if slices.Contains(p.chain, loc) {
		return nil, includeError(parent, n, fmt.Errorf("%s includes itself", u.Redacted()))
	}
	if len(p.chain) >= MaxIncludeDepth {
		return nil, includeError(parent, n, fmt.Errorf("more than %d nested includes", MaxIncludeDepth))
	}

	rc, err := p.includes(u)
	if err != nil {
		return nil, includeError(parent, n, fmt.Errorf("%s: %w", u.Redacted(), err))
	}
	defer rc.Close()

	sub := &YAML{includes: p.includes, chain: append(slices.Clone(p.chain), loc)}
	root, _, err := sub.decode(u.Redacted(), rc)
	if err != nil {
		return nil, err
	}

	mount, err := confnode.NewElementNode(name)
	if err != nil {
		return nil, nodeLineError(parent, n, "%v", err)
	}
	if err := mount.AddChild(root); err != nil {
		return nil, wrapAt(n, err)
	}
	logger.Get(logger.Parser).Debug("Included configuration", "node", name, "location", u.Redacted())
	return mount, nil
}

func (p *YAML) header(name string, n *yaml.Node) (confnode.Header, error) {
	n = resolveAlias(n)
	if n.Kind != yaml.MappingNode {
		return confnode.Header{}, lineError(name, n, "header must be a mapping")
	}
	tmp, err := confnode.NewElementNode(headerKey)
	if err != nil {
		return confnode.Header{}, err
	}
	if err := p.fill(tmp, n); err != nil {
		return confnode.Header{}, err
	}
	values, err := headerTable.Resolve(tmp)
	if err != nil {
		return confnode.Header{}, err
	}

	h := confnode.Header{
		ID:          values.String("id"),
		Group:       values.String("group"),
		Application: values.String("application"),
		Description: values.String("description"),
	}
	if h.CreatedBy, err = modifiedBy(values, "createdBy", "createdAt"); err != nil {
		return confnode.Header{}, lineError(name, n, "header created: %v", err)
	}
	if h.UpdatedBy, err = modifiedBy(values, "updatedBy", "updatedAt"); err != nil {
		return confnode.Header{}, lineError(name, n, "header updated: %v", err)
	}
	return h, nil
}

func modifiedBy(values binding.Values, byID, atID string) (confnode.ModifiedBy, error) {
	at, err := values.Time(atID)
	if err != nil {
		return confnode.ModifiedBy{}, err
	}
	return confnode.ModifiedBy{Modifier: values.String(byID), Timestamp: at}, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func lineError(name string, n *yaml.Node, format string, args ...any) error {
	return &confnode.ConfigurationError{
		Path: name,
		Err:  fmt.Errorf("%w: line %d: %s", ErrMalformed, n.Line, fmt.Sprintf(format, args...)),
	}
}

func nodeLineError(parent confnode.Node, n *yaml.Node, format string, args ...any) error {
	return &confnode.ConfigurationError{
		Path:  parent.Path(),
		State: parent.State(),
		Err:   fmt.Errorf("%w: line %d: %s", ErrMalformed, n.Line, fmt.Sprintf(format, args...)),
	}
}

func includeError(parent confnode.Node, n *yaml.Node, err error) error {
	return &confnode.ConfigurationError{
		Path:  parent.Path(),
		State: parent.State(),
		Err:   fmt.Errorf("%w: line %d: %w", ErrInclude, n.Line, err),
	}
}

// wrapAt adds the source line to a tree error while keeping its path.
func wrapAt(n *yaml.Node, err error) error {
	var ce *confnode.ConfigurationError
	if errors.As(err, &ce) {
		return &confnode.ConfigurationError{
			Path:  ce.Path,
			State: ce.State,
			Err:   fmt.Errorf("line %d: %w", n.Line, ce.Err),
		}
	}
	return fmt.Errorf("line %d: %w", n.Line, err)
}
