// Package entity holds the organizational records above configuration trees:
// application groups and the applications they own. Identities come from an
// IDGenerator and are never chosen by callers.
package entity

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/veesix-networks/zconfig/pkg/confnode"
)

// CloneContext carries optional inputs to Clone. A nil context keeps the
// source name and records no modifier.
type CloneContext struct {
	Name     string
	Modifier string
}

type base struct {
	id          string
	name        string
	description string
	properties  map[string]string
	createdBy   confnode.ModifiedBy
	updatedBy   confnode.ModifiedBy
}

func (b *base) ID() string {
	return b.id
}

func (b *base) Name() string {
	return b.name
}

func (b *base) Description() string {
	return b.description
}

func (b *base) SetDescription(d string) {
	b.description = d
}

func (b *base) CreatedBy() confnode.ModifiedBy {
	return b.createdBy
}

func (b *base) UpdatedBy() confnode.ModifiedBy {
	return b.updatedBy
}

// Touch records modifier as the last updater.
func (b *base) Touch(modifier string) {
	b.updatedBy = confnode.ModifiedBy{Modifier: modifier, Timestamp: time.Now().UTC()}
}

func (b *base) Properties() map[string]string {
	return maps.Clone(b.properties)
}

func (b *base) Property(key string) (string, bool) {
	v, ok := b.properties[key]
	return v, ok
}

func (b *base) SetProperty(key, value string) error {
	if key == "" {
		return &EntityError{ID: b.id, Err: fmt.Errorf("%w: empty property key", ErrInvalidArgument)}
	}
	if b.properties == nil {
		b.properties = make(map[string]string)
	}
	b.properties[key] = value
	return nil
}

func (b *base) RemoveProperty(key string) bool {
	if _, ok := b.properties[key]; !ok {
		return false
	}
	delete(b.properties, key)
	return true
}

// compareKey orders by identity only.
func (b *base) compareKey(other *base) int {
	return strings.Compare(b.id, other.id)
}

// copyFrom copies every mutable attribute except identity and creation.
func (b *base) copyFrom(src *base) {
	b.name = src.name
	b.description = src.description
	b.properties = maps.Clone(src.properties)
	b.updatedBy = src.updatedBy
}

func validName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("%w: name %q contains '/'", ErrInvalidArgument, name)
	}
	return nil
}

func stamp(modifier string) confnode.ModifiedBy {
	if modifier == "" {
		return confnode.ModifiedBy{}
	}
	return confnode.ModifiedBy{Modifier: modifier, Timestamp: time.Now().UTC()}
}
