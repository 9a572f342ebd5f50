package entity

import (
	"fmt"
	"maps"

	"github.com/veesix-networks/zconfig/pkg/confnode"
)

// GroupRecord is the persisted form of a group and its applications.
type GroupRecord struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	Description  string              `yaml:"description,omitempty"`
	Channel      string              `yaml:"channel,omitempty"`
	Properties   map[string]string   `yaml:"properties,omitempty"`
	CreatedBy    confnode.ModifiedBy `yaml:"created-by,omitempty"`
	UpdatedBy    confnode.ModifiedBy `yaml:"updated-by,omitempty"`
	Applications []ApplicationRecord `yaml:"applications,omitempty"`
}

type ApplicationRecord struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	Properties  map[string]string   `yaml:"properties,omitempty"`
	CreatedBy   confnode.ModifiedBy `yaml:"created-by,omitempty"`
	UpdatedBy   confnode.ModifiedBy `yaml:"updated-by,omitempty"`
}

func (g *ApplicationGroup) Record() GroupRecord {
	rec := GroupRecord{
		ID:          g.id,
		Name:        g.name,
		Description: g.description,
		Channel:     g.channel,
		Properties:  maps.Clone(g.properties),
		CreatedBy:   g.createdBy,
		UpdatedBy:   g.updatedBy,
	}
	for _, app := range g.applications {
		rec.Applications = append(rec.Applications, ApplicationRecord{
			ID:          app.id,
			Name:        app.name,
			Description: app.description,
			Properties:  maps.Clone(app.properties),
			CreatedBy:   app.createdBy,
			UpdatedBy:   app.updatedBy,
		})
	}
	return rec
}

// GroupFromRecord restores a persisted group, keeping its stored identities.
func GroupFromRecord(rec GroupRecord) (*ApplicationGroup, error) {
	if rec.ID == "" {
		return nil, &EntityError{Err: fmt.Errorf("%w: record %q has no id", ErrInvalidArgument, rec.Name)}
	}
	if err := validName(rec.Name); err != nil {
		return nil, &EntityError{ID: rec.ID, Err: err}
	}
	g := &ApplicationGroup{
		base: base{
			id:          rec.ID,
			name:        rec.Name,
			description: rec.Description,
			properties:  maps.Clone(rec.Properties),
			createdBy:   rec.CreatedBy,
			updatedBy:   rec.UpdatedBy,
		},
		channel: rec.Channel,
	}
	for _, ar := range rec.Applications {
		if ar.ID == "" {
			return nil, &EntityError{ID: rec.ID, Err: fmt.Errorf("%w: application %q has no id", ErrInvalidArgument, ar.Name)}
		}
		if err := validName(ar.Name); err != nil {
			return nil, &EntityError{ID: ar.ID, Err: err}
		}
		app := &Application{base: base{
			id:          ar.ID,
			name:        ar.Name,
			description: ar.Description,
			properties:  maps.Clone(ar.Properties),
			createdBy:   ar.CreatedBy,
			updatedBy:   ar.UpdatedBy,
		}}
		if err := g.AddApplication(app); err != nil {
			return nil, err
		}
	}
	return g, nil
}
