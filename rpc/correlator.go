package rpc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"mini-jsonrpc/deferred"
	"mini-jsonrpc/message"
)

var ErrDuplicateID = errors.New("rpc: identifier already has a pending call")

// IDGenerator produces request identifiers.
type IDGenerator interface {
	NextID() message.ID
}

// UUIDGenerator produces random (version 4) UUID string identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NextID() message.ID {
	return message.StringID(uuid.NewString())
}

// SequenceGenerator produces monotonically increasing integer identifiers,
// starting at 1. The zero value is ready to use.
type SequenceGenerator struct {
	seq atomic.Int64
}

func (g *SequenceGenerator) NextID() message.ID {
	return message.Int64ID(g.seq.Add(1))
}

// Call is the handle of an outstanding request. It settles exactly once: with
// the response's result, with its error object (a *message.Error), or with
// the error that closed the peer.
type Call struct {
	id     message.ID
	method string
	d      *deferred.Deferred
}

func (c *Call) ID() message.ID { return c.id }

func (c *Call) Method() string { return c.method }

// Done implements deferred.Awaitable.
func (c *Call) Done() <-chan struct{} { return c.d.Done() }

// Result implements deferred.Awaitable.
func (c *Call) Result() (any, error) { return c.d.Result() }

// Wait blocks until the call settles or ctx is done.
func (c *Call) Wait(ctx context.Context) (any, error) { return c.d.Wait(ctx) }

// Correlator owns the pending-call table of one peer.
//
// Each record is removed with LoadAndDelete before its outcome is delivered,
// so a second response for the same identifier finds nothing, even when the
// delivery itself triggers further message handling.
type Correlator struct {
	pending sync.Map // map[message.ID]*Call
	size    atomic.Int64
}

// Add registers a pending call under id.
func (c *Correlator) Add(id message.ID, method string) (*Call, error) {
	call := &Call{id: id, method: method, d: deferred.New()}
	if _, loaded := c.pending.LoadOrStore(id, call); loaded {
		return nil, ErrDuplicateID
	}
	c.size.Add(1)
	return call, nil
}

// Deliver settles the call matching resp.ID. It reports false for an unknown
// identifier (late, duplicate or foreign response).
func (c *Correlator) Deliver(resp *message.Envelope) bool {
	if resp == nil || resp.ID == nil {
		return false
	}
	call, ok := c.take(*resp.ID)
	if !ok {
		return false
	}
	if resp.Error != nil {
		call.d.Reject(resp.Error)
	} else {
		call.d.Resolve(resp.Result)
	}
	return true
}

// Remove discards the pending call for id without settling it.
func (c *Correlator) Remove(id message.ID) bool {
	_, ok := c.take(id)
	return ok
}

// RejectAll rejects every pending call with err. Used when the connection
// breaks so that no caller waits forever.
func (c *Correlator) RejectAll(err error) {
	c.pending.Range(func(key, _ any) bool {
		if call, ok := c.take(key.(message.ID)); ok {
			call.d.Reject(err)
		}
		return true
	})
}

// Len returns the number of pending calls.
func (c *Correlator) Len() int {
	return int(c.size.Load())
}

func (c *Correlator) take(id message.ID) (*Call, bool) {
	v, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	c.size.Add(-1)
	return v.(*Call), true
}
