package confnode

import (
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/afero"
)

type ResourceType uint8

const (
	ResourceFile ResourceType = iota + 1
	ResourceBlob
)

func (t ResourceType) String() string {
	switch t {
	case ResourceFile:
		return "FILE"
	case ResourceBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Resource is a node whose content lives outside the tree, at Location.
// Once the content is reachable on the local filesystem, SetHandle records
// the local path.
type Resource interface {
	Node
	NodeVersion() int64
	ResourceType() ResourceType
	Location() *url.URL
	SetLocation(u *url.URL) error
	SetHandle(fs afero.Fs, path string) error
	Handle() string
	HasHandle() bool
}

// FileResource references a single file. Its resource type is fixed by the
// constructor.
type FileResource struct {
	element
	resourceType ResourceType
	location     *url.URL
	fs           afero.Fs
	handle       string
}

func NewFileResource(name string) (*FileResource, error) {
	return newFileResource(name, ResourceFile)
}

func newFileResource(name string, t ResourceType) (*FileResource, error) {
	if name == "" {
		return nil, &ConfigurationError{Err: ErrEmptyName}
	}
	return &FileResource{
		element:      element{base: base{name: name}},
		resourceType: t,
	}, nil
}

func (r *FileResource) Kind() Kind {
	return KindResource
}

func (r *FileResource) Path() string {
	return pathOf(r)
}

func (r *FileResource) ResourceType() ResourceType {
	return r.resourceType
}

func (r *FileResource) ExpectVersion(v int64) error {
	if r.nodeVersion != v {
		return errorf(r, ErrVersionConflict, "expected %d, found %d", v, r.nodeVersion)
	}
	return nil
}

func (r *FileResource) Location() *url.URL {
	if r.location == nil {
		return nil
	}
	u := *r.location
	return &u
}

func (r *FileResource) SetLocation(u *url.URL) error {
	if u == nil {
		return errorf(r, ErrInvalidArgument, "nil location")
	}
	loc := *u
	return r.mutate(r, func() {
		r.location = &loc
	})
}

// SetHandle validates eagerly: the path must exist, be a regular file and
// open for reading on fs.
func (r *FileResource) SetHandle(fs afero.Fs, path string) error {
	if fs == nil {
		return errorf(r, ErrInvalidArgument, "nil filesystem")
	}
	if path == "" {
		return errorf(r, ErrInvalidArgument, "empty resource path")
	}

	info, err := fs.Stat(path)
	if err != nil {
		return nodeError(r, fmt.Errorf("%w: %s: %w", ErrNotReadable, path, err))
	}
	if info.IsDir() {
		return errorf(r, ErrNotReadable, "%s is a directory", path)
	}
	f, err := fs.Open(path)
	if err != nil {
		return nodeError(r, fmt.Errorf("%w: %s: %w", ErrNotReadable, path, err))
	}
	f.Close()

	return r.mutate(r, func() {
		r.fs = fs
		r.handle = path
	})
}

func (r *FileResource) Handle() string {
	return r.handle
}

func (r *FileResource) HasHandle() bool {
	return r.fs != nil && r.handle != ""
}

// Open returns a fresh read-only handle on the local copy.
func (r *FileResource) Open() (afero.File, error) {
	if !r.HasHandle() {
		return nil, nodeError(r, ErrHandleNotSet)
	}
	f, err := r.fs.Open(r.handle)
	if err != nil {
		return nil, nodeError(r, fmt.Errorf("open %s: %w", r.handle, err))
	}
	return f, nil
}

func (r *FileResource) Find(path []string, index int) Node {
	return findTerminal(r, path, index)
}

func (r *FileResource) MarkLoaded() error {
	return markLoaded(r, &r.state)
}

// BlobResource is a file resource that supports offset-bounded reads.
type BlobResource struct {
	FileResource
}

func NewBlobResource(name string) (*BlobResource, error) {
	f, err := newFileResource(name, ResourceBlob)
	if err != nil {
		return nil, err
	}
	return &BlobResource{FileResource: *f}, nil
}

func (b *BlobResource) Find(path []string, index int) Node {
	return findTerminal(b, path, index)
}

type BlobRead struct {
	Path      string
	Offset    int64
	BytesRead int32
	Data      []byte
}

// Read returns up to length bytes starting at offset. Each call opens and
// closes its own handle, so concurrent reads never share a cursor. A short
// or empty read is not an error; callers must check BytesRead.
func (b *BlobResource) Read(offset int64, length int32) (*BlobRead, error) {
	if offset < 0 {
		return nil, errorf(b, ErrInvalidArgument, "offset %d < 0", offset)
	}
	if length <= 0 {
		return nil, errorf(b, ErrInvalidArgument, "length %d <= 0", length)
	}
	if !b.HasHandle() {
		return nil, nodeError(b, ErrHandleNotSet)
	}

	f, err := b.fs.Open(b.handle)
	if err != nil {
		return nil, nodeError(b, fmt.Errorf("open %s: %w", b.handle, err))
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, nodeError(b, fmt.Errorf("seek %s to %d: %w", b.handle, offset, err))
		}
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nodeError(b, fmt.Errorf("read %s: %w", b.handle, err))
	}

	return &BlobRead{
		Path:      b.handle,
		Offset:    offset,
		BytesRead: int32(n),
		Data:      buf[:n],
	}, nil
}
