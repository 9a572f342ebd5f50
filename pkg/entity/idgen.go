package entity

import (
	"context"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type GeneratorFunc func(ctx context.Context) (string, error)

func (f GeneratorFunc) NewID(ctx context.Context) (string, error) {
	return f(ctx)
}

// UUIDGenerator issues random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(context.Context) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

const defaultNanoIDSize = 21

// NanoIDGenerator issues URL-safe nano ids. A zero Size uses 21 characters
// and an empty Alphabet uses the library default.
type NanoIDGenerator struct {
	Size     int
	Alphabet string
}

func (g NanoIDGenerator) NewID(context.Context) (string, error) {
	size := g.Size
	if size <= 0 {
		size = defaultNanoIDSize
	}
	if g.Alphabet != "" {
		return nanoid.Generate(g.Alphabet, size)
	}
	return nanoid.New(size)
}

func newID(ctx context.Context, gen IDGenerator) (string, error) {
	if gen == nil {
		return "", &EntityError{Err: ErrNoGenerator}
	}
	id, err := gen.NewID(ctx)
	if err != nil {
		return "", &EntityError{Err: err}
	}
	if id == "" {
		return "", &EntityError{Err: ErrEmptyID}
	}
	return id, nil
}
