package core

import "sync"

// Invoker is the seam through which handlers fire asynchronous work
// without blocking the caller. Every peer uses the default implementation
// from NewInvoker, which tracks every spawned goroutine so shutdown can
// wait for them to drain deterministically.
type Invoker interface {
	// Spawn runs f on its own goroutine.
	Spawn(f func())

	// Stop blocks until every goroutine previously spawned has returned.
	Stop()
}

// defaultInvoker is the production Invoker: a bare goroutine per Spawn,
// tracked by a WaitGroup so Stop can be used to drain outstanding work
// during an orderly shutdown.
type defaultInvoker struct {
	group sync.WaitGroup
}

// NewInvoker returns the default, goroutine-per-call Invoker.
func NewInvoker() Invoker {
	return &defaultInvoker{}
}

func (d *defaultInvoker) Spawn(f func()) {
	d.group.Add(1)
	go func() {
		defer d.group.Done()
		f()
	}()
}

func (d *defaultInvoker) Stop() {
	d.group.Wait()
}
