// Package rpc implements the symmetric JSON-RPC 2.0 peer: it builds requests
// and notifications, correlates responses back to their calls, and dispatches
// inbound requests and notifications to a method table.
//
// The same Peer acts as client and server over one channel:
//
//	caller ──Request(method)──► BuildRequest ──► pending[id] ──► Sender
//	                                                  ▲
//	inbound ──Handle──► Classify ─┬─ response     ────┘ LoadAndDelete, settle once
//	                              ├─ request      ──► MethodTable ──► exactly one response ──► Sender
//	                              ├─ notification ──► MethodTable ──► no response
//	                              └─ unrecognized ──► dropped
//
// The peer never serializes and never touches a socket; the Sender and the
// caller of Handle are the transport boundary.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"mini-jsonrpc/deferred"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
)

// ErrClosed rejects calls that are pending when the peer is closed and
// requests issued afterwards.
var ErrClosed = errors.New("rpc: peer closed")

// maxIDAttempts bounds identifier regeneration when a generator collides with
// an outstanding call.
const maxIDAttempts = 8

// Sender transmits an envelope to the remote peer.
type Sender interface {
	Send(ctx context.Context, env *message.Envelope) error
}

// SendFunc adapts a function to Sender.
type SendFunc func(ctx context.Context, env *message.Envelope) error

func (f SendFunc) Send(ctx context.Context, env *message.Envelope) error {
	return f(ctx, env)
}

// Tracker counts work a Peer keeps running after Handle returns, such as
// the goroutine awaiting a deferred outcome. *sync.WaitGroup satisfies it.
type Tracker interface {
	Add(delta int)
	Done()
}

type nopTracker struct{}

func (nopTracker) Add(int) {}
func (nopTracker) Done()   {}

// Option configures a Peer.
type Option func(*Peer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Peer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithIDGenerator replaces the default UUID identifiers.
func WithIDGenerator(ids IDGenerator) Option {
	return func(p *Peer) {
		if ids != nil {
			p.ids = ids
		}
	}
}

// WithMiddleware wraps method invocation, for requests and notifications alike.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(p *Peer) {
		p.middlewares = append(p.middlewares, mws...)
	}
}

// WithTracker reports deferred replies to t, so an owner draining inbound
// work also waits for responses still being produced.
func WithTracker(t Tracker) Option {
	return func(p *Peer) {
		if t != nil {
			p.tracker = t
		}
	}
}

// Peer is one end of a JSON-RPC channel. It is safe for concurrent use.
type Peer struct {
	sender      Sender
	methods     MethodTable
	calls       Correlator
	ids         IDGenerator
	middlewares []middleware.Middleware
	invoke      middleware.HandlerFunc // middleware(middleware(...(p.dispatch)))
	tracker     Tracker
	logger      *zap.Logger
	closed      atomic.Bool
}

// NewPeer creates a peer that transmits through sender and serves methods.
// A nil methods table serves nothing: every request gets Method not found.
func NewPeer(sender Sender, methods MethodTable, opts ...Option) *Peer {
	if methods == nil {
		methods = Methods{}
	}
	p := &Peer{
		sender:  sender,
		methods: methods,
		ids:     UUIDGenerator{},
		tracker: nopTracker{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.invoke = middleware.Chain(p.middlewares...)(p.dispatch)
	return p
}

// BuildNotification returns a notification envelope. It never allocates an
// identifier nor registers a pending call.
func (p *Peer) BuildNotification(method string, params message.Params) *message.Envelope {
	return message.NewNotification(method, params)
}

// BuildRequest allocates a fresh identifier, registers a pending call for it,
// and returns the envelope to send along with the call handle.
func (p *Peer) BuildRequest(method string, params message.Params) (*message.Envelope, *Call, error) {
	if p.closed.Load() {
		return nil, nil, ErrClosed
	}
	for i := 0; i < maxIDAttempts; i++ {
		id := p.ids.NextID()
		call, err := p.calls.Add(id, method)
		if errors.Is(err, ErrDuplicateID) {
			continue
		}
		// Close may have run RejectAll between the check above and Add.
		if p.closed.Load() {
			p.calls.Remove(id)
			return nil, nil, ErrClosed
		}
		return message.NewRequest(id, method, params), call, nil
	}
	return nil, nil, fmt.Errorf("rpc: no free identifier after %d attempts: %w", maxIDAttempts, ErrDuplicateID)
}

// Notify sends a notification.
func (p *Peer) Notify(ctx context.Context, method string, params ...any) error {
	return p.sender.Send(ctx, p.BuildNotification(method, params))
}

// Request sends a request and returns its handle without waiting.
func (p *Peer) Request(ctx context.Context, method string, params ...any) (*Call, error) {
	env, call, err := p.BuildRequest(method, params)
	if err != nil {
		return nil, err
	}
	if err := p.sender.Send(ctx, env); err != nil {
		p.calls.Remove(call.ID()) // Clean up on failure
		return nil, err
	}
	return call, nil
}

// Call sends a request and waits for its outcome. If ctx ends first the
// pending call is discarded and a later response is dropped.
func (p *Peer) Call(ctx context.Context, method string, params ...any) (any, error) {
	call, err := p.Request(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	result, err := call.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		p.Cancel(call.ID())
	}
	return result, err
}

// Cancel discards the pending call for id. The handle is not settled.
func (p *Peer) Cancel(id message.ID) bool {
	return p.calls.Remove(id)
}

// Pending returns the number of outstanding requests.
func (p *Peer) Pending() int {
	return p.calls.Len()
}

// Close rejects every pending call with cause (ErrClosed if nil) and refuses
// new requests. Inbound handling keeps working.
func (p *Peer) Close(cause error) {
	if cause == nil {
		cause = ErrClosed
	} else if !errors.Is(cause, ErrClosed) {
		cause = fmt.Errorf("%w: %w", ErrClosed, cause)
	}
	p.closed.Store(true)
	p.calls.RejectAll(cause)
}

// Handle classifies env and dispatches it. Unrecognized envelopes are dropped.
func (p *Peer) Handle(ctx context.Context, env *message.Envelope) {
	switch message.Classify(env) {
	case message.KindRequest:
		p.HandleRequest(ctx, env)
	case message.KindNotification:
		p.HandleNotification(ctx, env)
	case message.KindResponse:
		p.HandleResponse(env)
	default:
		p.logger.Debug("dropping unrecognized envelope")
	}
}

// HandleResponse settles the pending call matching resp. It reports false,
// with no other effect, when no call is pending under that identifier.
func (p *Peer) HandleResponse(resp *message.Envelope) bool {
	if p.calls.Deliver(resp) {
		return true
	}
	if resp != nil && resp.ID != nil {
		p.logger.Debug("dropping unmatched response", zap.Stringer("id", *resp.ID))
	}
	return false
}

// HandleRequest invokes the requested method and emits exactly one response.
// An unknown method is answered immediately with Method not found. A deferred
// outcome is awaited on its own goroutine; HandleRequest does not block on it.
func (p *Peer) HandleRequest(ctx context.Context, req *message.Envelope) {
	if req == nil {
		return
	}
	if req.ID == nil {
		p.HandleNotification(ctx, req)
		return
	}
	id := *req.ID

	if _, ok := p.methods.Lookup(req.Method); !ok {
		p.reply(ctx, message.NewErrorResponse(id, message.ErrMethodNotFound))
		return
	}

	result, err := p.safeInvoke(ctx, req)
	if err != nil {
		p.reply(ctx, failure(id, err))
		return
	}

	if a, ok := result.(deferred.Awaitable); ok {
		p.tracker.Add(1)
		go func() {
			defer p.tracker.Done()
			result, err := deferred.Await(ctx, a)
			if err != nil {
				p.reply(ctx, failure(id, err))
				return
			}
			p.reply(ctx, message.NewResult(id, result))
		}()
		return
	}
	p.reply(ctx, message.NewResult(id, result))
}

// HandleNotification invokes the method, if registered, and discards any
// outcome. It never emits an envelope.
func (p *Peer) HandleNotification(ctx context.Context, req *message.Envelope) {
	if req == nil {
		return
	}
	if _, ok := p.methods.Lookup(req.Method); !ok {
		p.logger.Debug("dropping notification for unknown method", zap.String("method", req.Method))
		return
	}
	if _, err := p.safeInvoke(ctx, req); err != nil {
		p.logger.Debug("notification handler failed", zap.String("method", req.Method), zap.Error(err))
	}
}

// dispatch is the innermost handler of the middleware chain.
func (p *Peer) dispatch(ctx context.Context, req *message.Envelope) (any, error) {
	h, ok := p.methods.Lookup(req.Method)
	if !ok {
		return nil, message.ErrMethodNotFound
	}
	return h.Invoke(ctx, req.Params)
}

// safeInvoke runs the middleware chain, turning a panic into an Internal
// error whose data is the panic value.
func (p *Peer) safeInvoke(ctx context.Context, req *message.Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("method panicked", zap.String("method", req.Method), zap.Any("panic", r))
			result, err = nil, message.ErrInternal.
				WithMessage(fmt.Sprintf("method %s panicked: %v", req.Method, r)).
				WithData(fmt.Sprint(r))
		}
	}()
	return p.invoke(ctx, req)
}

func (p *Peer) reply(ctx context.Context, resp *message.Envelope) {
	if err := p.sender.Send(ctx, resp); err != nil {
		p.logger.Warn("failed to send response", zap.Stringer("id", *resp.ID), zap.Error(err))
	}
}

// failure converts a method error into an error response. Errors that already
// are JSON-RPC error objects are sent as is; anything else becomes an
// Internal error carrying the failure text.
func failure(id message.ID, err error) *message.Envelope {
	var ptr *message.Error
	if errors.As(err, &ptr) && ptr != nil {
		return message.NewErrorResponse(id, *ptr)
	}
	var val message.Error
	if errors.As(err, &val) {
		return message.NewErrorResponse(id, val)
	}
	return message.NewErrorResponse(id, message.ErrInternal.WithMessage(err.Error()))
}
