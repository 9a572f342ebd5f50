// Package opdb is the operational store: small keyed records grouped by
// namespace that must survive a restart.
package opdb

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("opdb: key not found")

type Store interface {
	Put(ctx context.Context, namespace, key string, value []byte) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Delete(ctx context.Context, namespace, key string) error
	Load(ctx context.Context, namespace string, fn LoadFunc) error
	Count(ctx context.Context, namespace string) (int, error)
	Clear(ctx context.Context, namespace string) error
	Close() error
}

// LoadFunc is called once per record in key order. Returning an error stops
// the scan.
type LoadFunc func(key string, value []byte) error

const (
	NamespaceGroups         = "groups"
	NamespaceConfigurations = "configurations"
)
