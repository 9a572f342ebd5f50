package entity

import (
	"errors"
	"fmt"
)

var (
	ErrNoGenerator          = errors.New("identity generator required")
	ErrIdentityMismatch     = errors.New("identity mismatch")
	ErrEmptyName            = errors.New("name is required")
	ErrEmptyID              = errors.New("generated identity is empty")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrDuplicateApplication = errors.New("application name already used in group")
	ErrApplicationOwned     = errors.New("application already belongs to a group")
)

// EntityError reports misuse of entity operations. These are programming
// errors, not transient failures.
type EntityError struct {
	ID  string
	Err error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("entity: %v", e.Err)
	}
	return fmt.Sprintf("entity [id=%s]: %v", e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}
