// Package transport moves envelopes over a framed byte stream.
//
// Conn is symmetric: both ends send and receive requests, notifications and
// responses over one connection. Correlation is not done here; Conn only hands
// every decoded envelope to the handler given to Serve (normally rpc.Peer.Handle),
// each on its own goroutine, and implements rpc.Sender for the other direction.
//
//	goroutine-1 ──Send(req id=a)──┐
//	goroutine-2 ──Send(req id=b)──┼──→ single conn ──→ remote
//	goroutine-3 ──Send(notify)────┘
//
//	Serve:  ←── response(id=b) ──→ handle(env) inline → peer settles call b
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
)

// DefaultHeartbeat is the interval between keep-alive frames.
const DefaultHeartbeat = 30 * time.Second

var ErrConnClosed = errors.New("transport: connection closed")

// HandleFunc receives every decoded envelope.
type HandleFunc func(ctx context.Context, env *message.Envelope)

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHeartbeat sets the keep-alive interval; zero disables heartbeats.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Conn) {
		c.heartbeat = interval
	}
}

// Conn manages a single framed connection.
type Conn struct {
	conn      net.Conn    // Underlying stream connection
	codec     codec.Codec // Serialization format for outbound envelopes
	sending   sync.Mutex  // Write lock, frames from concurrent senders must not interleave
	heartbeat time.Duration
	logger    *zap.Logger
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps conn. Inbound frames may use either codec; outbound frames use codecType.
func NewConn(conn net.Conn, codecType codec.CodecType, opts ...Option) *Conn {
	c := &Conn{
		conn:      conn,
		codec:     codec.GetCodec(codecType),
		heartbeat: DefaultHeartbeat,
		logger:    zap.NewNop(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to address and wraps the connection.
func Dial(ctx context.Context, network, address string, codecType codec.CodecType, opts ...Option) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, codecType, opts...), nil
}

// Send serializes env and writes it as one frame. It implements rpc.Sender.
// The ctx deadline, if any, bounds the write.
func (c *Conn) Send(ctx context.Context, env *message.Envelope) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	header := protocol.Header{
		CodecType: byte(c.codec.Type()),
		Kind:      frameKind(message.Classify(env)),
	}

	c.sending.Lock()
	defer c.sending.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return protocol.Encode(c.conn, &header, body)
}

// Serve reads frames until the connection breaks, ctx is done or Close is
// called, dispatching each envelope to handle on its own goroutine. A body that
// cannot be decoded is answered with a Parse error response. Serve returns nil
// on a clean shutdown (EOF or local close) and the read error otherwise.
func (c *Conn) Serve(ctx context.Context, handle HandleFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.Close()

	go func() {
		select {
		case <-ctx.Done():
			c.Close() // Unblocks the read below
		case <-c.done:
		}
	}()
	if c.heartbeat > 0 {
		go c.heartbeatLoop(ctx, c.heartbeat)
	}

	for {
		header, body, err := protocol.Decode(c.conn)
		if err != nil {
			if c.isClosed() || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		// Heartbeats exist only to keep the connection alive
		if header.Kind == protocol.FrameHeartbeat {
			continue
		}

		env := &message.Envelope{}
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		if err := cdc.Decode(body, env); err != nil {
			c.logger.Warn("failed to decode envelope", zap.Error(err))
			parseErr := message.ErrParse
			reply := &message.Envelope{Version: message.Version, Error: &parseErr}
			if err := c.Send(ctx, reply); err != nil {
				c.logger.Warn("failed to send parse error", zap.Error(err))
			}
			continue
		}

		// Responses only settle a pending call; handling them inline means one
		// read before a hang-up is delivered before the caller sees Serve return.
		if message.Classify(env) == message.KindResponse {
			handle(ctx, env)
			continue
		}
		// Without `go`, a slow handler would block every later frame on this connection.
		go handle(ctx, env)
	}
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the underlying connection. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// heartbeatLoop sends periodic heartbeat frames so that an idle but healthy
// connection is not reaped. Heartbeat frames have no body.
func (c *Conn) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		header := &protocol.Header{
			CodecType: byte(c.codec.Type()),
			Kind:      protocol.FrameHeartbeat,
		}
		c.sending.Lock()
		err := protocol.Encode(c.conn, header, nil)
		c.sending.Unlock()
		if err != nil {
			return // Connection broken, exit heartbeat loop
		}
	}
}

func frameKind(kind message.Kind) protocol.FrameKind {
	switch kind {
	case message.KindRequest:
		return protocol.FrameRequest
	case message.KindNotification:
		return protocol.FrameNotification
	case message.KindResponse:
		return protocol.FrameResponse
	default:
		return protocol.FrameUnrecognized
	}
}
