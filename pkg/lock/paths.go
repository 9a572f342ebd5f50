package lock

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ServerPrefix = "/ZCONFIG-SERVER"
	LocksNode    = "__LOCKS__"
	RootLock     = "__ROOT_LOCK__"
)

// Entity is anything with a position in the group/application hierarchy.
type Entity interface {
	AbsolutePath() string
}

// Paths derives canonical lock paths for one server instance.
type Paths struct {
	root string
}

// NewPaths builds the server root. A root path without a leading "/" gets
// one; an empty root path is omitted.
func NewPaths(rootPath, instance string) (Paths, error) {
	if instance == "" {
		return Paths{}, &CoordinationError{Op: "configure", Err: fmt.Errorf("%w: instance name is empty", ErrInvalidPath)}
	}
	root := ServerPrefix
	if rootPath != "" {
		if !strings.HasPrefix(rootPath, "/") {
			rootPath = "/" + rootPath
		}
		root += rootPath
	}
	return Paths{root: root + "/" + instance}, nil
}

func (p Paths) ServerRoot() string {
	return p.root
}

// Lock is "<root>/__LOCKS__/<name>". Names are used verbatim, so an absolute
// name produces a doubled separator. Existing coordination trees depend on
// that layout.
func (p Paths) Lock(name string) string {
	return p.root + "/" + LocksNode + "/" + name
}

func (p Paths) System() string {
	return p.Lock(RootLock)
}

func (p Paths) ForEntity(e Entity) string {
	return p.Lock(e.AbsolutePath())
}

// ForConfiguration scopes the lock of a configuration to its major version.
func (p Paths) ForConfiguration(e Entity, major int) string {
	return p.ForEntity(e) + "/" + strconv.Itoa(major)
}
