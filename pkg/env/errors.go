package env

import (
	"errors"
	"fmt"
)

var ErrUnknownBackend = errors.New("unknown coordination backend")

// EnvironmentError reports a failure to bring up process-wide services.
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}
