package entity

import (
	"context"
	"fmt"
)

type Application struct {
	base
	group *ApplicationGroup
}

func NewApplication(ctx context.Context, gen IDGenerator, name string) (*Application, error) {
	if err := validName(name); err != nil {
		return nil, &EntityError{Err: err}
	}
	id, err := newID(ctx, gen)
	if err != nil {
		return nil, err
	}
	return &Application{base: base{id: id, name: name}}, nil
}

func (a *Application) SetCreatedBy(modifier string) {
	a.createdBy = stamp(modifier)
}

// Group is the owning group, or nil for a detached application.
func (a *Application) Group() *ApplicationGroup {
	return a.group
}

func (a *Application) Path() string {
	return a.name
}

func (a *Application) AbsolutePath() string {
	if a.group == nil {
		return "/" + a.name
	}
	return a.group.AbsolutePath() + "/" + a.name
}

func (a *Application) CompareKey(other *Application) int {
	return a.compareKey(&other.base)
}

// CopyChanges has the same identity rule as ApplicationGroup.CopyChanges.
// A rename that collides with a sibling is rejected.
func (a *Application) CopyChanges(src *Application) error {
	if src == nil {
		return &EntityError{ID: a.id, Err: fmt.Errorf("%w: nil source", ErrInvalidArgument)}
	}
	if src.id != a.id {
		return &EntityError{ID: a.id, Err: fmt.Errorf("%w: source id %s", ErrIdentityMismatch, src.id)}
	}
	if a.group != nil && src.name != a.name && a.group.Application(src.name) != nil {
		return &EntityError{ID: a.id, Err: fmt.Errorf("%w: %s", ErrDuplicateApplication, src.name)}
	}
	a.base.copyFrom(&src.base)
	return nil
}

// Clone returns a detached copy with a fresh identity.
func (a *Application) Clone(ctx context.Context, gen IDGenerator, cc *CloneContext) (*Application, error) {
	if gen == nil {
		return nil, &EntityError{ID: a.id, Err: ErrNoGenerator}
	}
	id, err := newID(ctx, gen)
	if err != nil {
		return nil, err
	}
	clone := &Application{base: base{id: id}}
	clone.base.copyFrom(&a.base)
	if cc != nil {
		if cc.Name != "" {
			if err := validName(cc.Name); err != nil {
				return nil, &EntityError{ID: a.id, Err: err}
			}
			clone.name = cc.Name
		}
		clone.createdBy = stamp(cc.Modifier)
	}
	return clone, nil
}
