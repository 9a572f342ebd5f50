package component

import (
	"context"
	"sync"
)

// Base carries the name, run context and goroutine group of a component.
// Embedders call StartContext from Start and StopContext from Stop.
type Base struct {
	name   string
	Ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBase(name string) *Base {
	return &Base{name: name}
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) StartContext(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	b.Ctx, b.cancel = context.WithCancel(parent)
}

// StopContext cancels the run context and waits for every goroutine started
// with Go.
func (b *Base) StopContext() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

func (b *Base) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}
