// Package component is the start/stop lifecycle shared by long-running
// services of the server.
package component

import "context"

type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
