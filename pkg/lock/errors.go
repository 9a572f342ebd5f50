package lock

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout      = errors.New("lock wait timed out")
	ErrNotHeld      = errors.New("lock not held")
	ErrClosed       = errors.New("coordinator closed")
	ErrInvalidPath  = errors.New("invalid lock path")
	ErrInvalidRetry = errors.New("invalid retry policy")
	ErrNoConnection = errors.New("coordination connection not configured")
)

// CoordinationError wraps every failure of the lock layer, from bad retry
// configuration to an exhausted acquire.
type CoordinationError struct {
	Op   string
	Path string
	Err  error
}

func (e *CoordinationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("coordination %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("coordination %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CoordinationError) Unwrap() error {
	return e.Err
}
