// Package deferred provides a resolve-once / reject-once outcome.
//
// A Deferred is the single abstraction behind both sides of a call: the client
// side waits on one for a pending request, and a method implementation may
// return one to settle its result later. Whichever of Resolve or Reject runs
// first wins; every later attempt is a no-op that reports false.
package deferred

import (
	"context"
	"sync"
)

// Awaitable is an outcome that settles at most once.
type Awaitable interface {
	// Done is closed once the outcome is settled.
	Done() <-chan struct{}
	// Result returns the settled outcome. It must only be called after Done is closed.
	Result() (any, error)
}

// Deferred is an Awaitable settled by Resolve or Reject.
type Deferred struct {
	once   sync.Once
	done   chan struct{}
	result any
	err    error
}

// New returns an unsettled Deferred.
func New() *Deferred {
	return &Deferred{done: make(chan struct{})}
}

// Resolved returns a Deferred already resolved with v.
func Resolved(v any) *Deferred {
	d := New()
	d.Resolve(v)
	return d
}

// Rejected returns a Deferred already rejected with err.
func Rejected(err error) *Deferred {
	d := New()
	d.Reject(err)
	return d
}

// Go runs fn on a new goroutine and settles the returned Deferred with its outcome.
func Go(fn func() (any, error)) *Deferred {
	d := New()
	go func() {
		v, err := fn()
		if err != nil {
			d.Reject(err)
			return
		}
		d.Resolve(v)
	}()
	return d
}

// Resolve settles d with v. It reports whether this call settled d.
func (d *Deferred) Resolve(v any) bool {
	return d.settle(v, nil)
}

// Reject settles d with err. It reports whether this call settled d.
func (d *Deferred) Reject(err error) bool {
	return d.settle(nil, err)
}

func (d *Deferred) settle(v any, err error) bool {
	settled := false
	d.once.Do(func() {
		d.result, d.err = v, err
		close(d.done)
		settled = true
	})
	return settled
}

// Done implements Awaitable.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Result implements Awaitable.
func (d *Deferred) Result() (any, error) {
	return d.result, d.err
}

// Wait blocks until d settles or ctx is done.
func (d *Deferred) Wait(ctx context.Context) (any, error) {
	return Await(ctx, d)
}

// Await blocks until a settles or ctx is done.
func Await(ctx context.Context, a Awaitable) (any, error) {
	select {
	case <-a.Done():
		return a.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
