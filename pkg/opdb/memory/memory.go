// Package memory is a process-local opdb.Store for tests and single-shot
// tools. Nothing survives Close.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/veesix-networks/zconfig/pkg/opdb"
)

var ErrClosed = errors.New("opdb/memory: store closed")

type Store struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

var _ opdb.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func (s *Store) Put(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.data[namespace] = ns
	}
	ns[key] = slices.Clone(value)
	return nil
}

func (s *Store) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.data[namespace][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", opdb.ErrNotFound, namespace, key)
	}
	return slices.Clone(v), nil
}

func (s *Store) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.data[namespace], key)
	return nil
}

func (s *Store) Load(ctx context.Context, namespace string, fn opdb.LoadFunc) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	ns := s.data[namespace]
	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = slices.Clone(ns[k])
	}
	s.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Count(_ context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.data[namespace]), nil
}

func (s *Store) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.data, namespace)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}
