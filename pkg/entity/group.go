package entity

import (
	"context"
	"fmt"
)

// ApplicationGroup owns a set of applications with unique names.
type ApplicationGroup struct {
	base
	channel      string
	applications []*Application
}

func NewApplicationGroup(ctx context.Context, gen IDGenerator, name string) (*ApplicationGroup, error) {
	if err := validName(name); err != nil {
		return nil, &EntityError{Err: err}
	}
	id, err := newID(ctx, gen)
	if err != nil {
		return nil, err
	}
	return &ApplicationGroup{base: base{id: id, name: name}}, nil
}

// Channel names the update channel the group follows.
func (g *ApplicationGroup) Channel() string {
	return g.channel
}

func (g *ApplicationGroup) SetChannel(channel string) {
	g.channel = channel
}

// Rename changes the name only; identity and lock paths derived from the old
// name are unaffected until the change is stored.
func (g *ApplicationGroup) Rename(name string) error {
	if err := validName(name); err != nil {
		return &EntityError{ID: g.id, Err: err}
	}
	g.name = name
	return nil
}

func (g *ApplicationGroup) SetCreatedBy(modifier string) {
	g.createdBy = stamp(modifier)
}

func (g *ApplicationGroup) Path() string {
	return g.name
}

func (g *ApplicationGroup) AbsolutePath() string {
	return "/" + g.name
}

func (g *ApplicationGroup) CompareKey(other *ApplicationGroup) int {
	return g.compareKey(&other.base)
}

// CopyChanges merges the mutable attributes of src into g. Both must be the
// same logical record: a different id is rejected. Applications are not
// copied; they are managed through AddApplication and RemoveApplication.
func (g *ApplicationGroup) CopyChanges(src *ApplicationGroup) error {
	if src == nil {
		return &EntityError{ID: g.id, Err: fmt.Errorf("%w: nil source", ErrInvalidArgument)}
	}
	if src.id != g.id {
		return &EntityError{ID: g.id, Err: fmt.Errorf("%w: source id %s", ErrIdentityMismatch, src.id)}
	}
	g.copyAttributes(src)
	return nil
}

func (g *ApplicationGroup) copyAttributes(src *ApplicationGroup) {
	g.base.copyFrom(&src.base)
	g.channel = src.channel
}

// Clone returns a new group with a fresh identity, the attributes of g, and a
// clone of every application, each with its own fresh identity.
func (g *ApplicationGroup) Clone(ctx context.Context, gen IDGenerator, cc *CloneContext) (*ApplicationGroup, error) {
	if gen == nil {
		return nil, &EntityError{ID: g.id, Err: ErrNoGenerator}
	}
	id, err := newID(ctx, gen)
	if err != nil {
		return nil, err
	}

	clone := &ApplicationGroup{base: base{id: id}}
	clone.copyAttributes(g)
	if cc != nil {
		if cc.Name != "" {
			if err := validName(cc.Name); err != nil {
				return nil, &EntityError{ID: g.id, Err: err}
			}
			clone.name = cc.Name
		}
		clone.createdBy = stamp(cc.Modifier)
	}

	for _, app := range g.applications {
		appClone, err := app.Clone(ctx, gen, nil)
		if err != nil {
			return nil, err
		}
		if cc != nil {
			appClone.createdBy = clone.createdBy
		}
		if err := clone.AddApplication(appClone); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

func (g *ApplicationGroup) AddApplication(app *Application) error {
	if app == nil {
		return &EntityError{ID: g.id, Err: fmt.Errorf("%w: nil application", ErrInvalidArgument)}
	}
	if app.group != nil {
		return &EntityError{ID: app.id, Err: fmt.Errorf("%w: %s", ErrApplicationOwned, app.group.name)}
	}
	if g.Application(app.name) != nil {
		return &EntityError{ID: g.id, Err: fmt.Errorf("%w: %s", ErrDuplicateApplication, app.name)}
	}
	app.group = g
	g.applications = append(g.applications, app)
	return nil
}

func (g *ApplicationGroup) RemoveApplication(name string) (*Application, bool) {
	for i, app := range g.applications {
		if app.name == name {
			g.applications = append(g.applications[:i], g.applications[i+1:]...)
			app.group = nil
			return app, true
		}
	}
	return nil, false
}

func (g *ApplicationGroup) Application(name string) *Application {
	for _, app := range g.applications {
		if app.name == name {
			return app
		}
	}
	return nil
}

func (g *ApplicationGroup) Applications() []*Application {
	out := make([]*Application, len(g.applications))
	copy(out, g.applications)
	return out
}
