// Package client calls a named service discovered through a registry.
//
// Each address gets poolSize multiplexed connections, dialed lazily and
// replaced once closed. Every connection carries a full rpc.Peer, so the
// remote side may call the methods given to WithMethods over the same socket.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/rpc"
	"mini-jsonrpc/transport"
)

var ErrClientClosed = errors.New("client: closed")

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMethods serves methods to the remote side on every connection.
func WithMethods(methods rpc.MethodTable) Option {
	return func(c *Client) {
		c.methods = methods
	}
}

// WithHeartbeat sets the per-connection keep-alive interval; zero disables it.
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Client) {
		c.heartbeat = interval
	}
}

// WithPeerOptions passes options to every connection's rpc.Peer.
func WithPeerOptions(opts ...rpc.Option) Option {
	return func(c *Client) {
		c.peerOpts = append(c.peerOpts, opts...)
	}
}

type Client struct {
	service   string
	registry  registry.Registry // find service instance from registry
	balancer  loadbalance.Balancer
	codecType codec.CodecType
	poolSize  int
	methods   rpc.MethodTable
	heartbeat time.Duration
	peerOpts  []rpc.Option
	logger    *zap.Logger

	mu     sync.Mutex
	pools  map[string]*pool // connections for each service instance
	closed bool
}

// pool holds the connections to one address.
type pool struct {
	slots []*session
	next  int
}

type session struct {
	conn *transport.Conn
	peer *rpc.Peer
}

func (s *session) alive() bool {
	select {
	case <-s.conn.Done():
		return false
	default:
		return true
	}
}

func NewClient(service string, reg registry.Registry, bal loadbalance.Balancer, codecType codec.CodecType, poolSize int, opts ...Option) *Client {
	if poolSize < 1 {
		poolSize = 1
	}
	c := &Client{
		service:   service,
		registry:  reg,
		balancer:  bal,
		codecType: codecType,
		poolSize:  poolSize,
		heartbeat: transport.DefaultHeartbeat,
		logger:    zap.NewNop(),
		pools:     make(map[string]*pool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peer picks an instance for method and returns a connected peer to it.
func (c *Client) Peer(ctx context.Context, method string) (*rpc.Peer, error) {
	// Get service instances from registry
	instances, err := c.registry.Discover(ctx, c.service)
	if err != nil {
		return nil, err
	}

	// Select an instance using load balancer
	instance, err := c.balancer.Pick(instances, method)
	if err != nil {
		return nil, err
	}
	return c.getPeer(ctx, instance.Addr)
}

// getPeer returns the next connection for addr in turn, dialing it if the
// slot is empty or its connection has closed.
func (c *Client) getPeer(ctx context.Context, addr string) (*rpc.Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	p, ok := c.pools[addr]
	if !ok {
		// No pool exists, create one
		p = &pool{slots: make([]*session, c.poolSize)}
		c.pools[addr] = p
	}

	i := p.next
	p.next = (p.next + 1) % len(p.slots)
	if s := p.slots[i]; s != nil && s.alive() {
		return s.peer, nil
	}

	s, err := c.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	p.slots[i] = s
	return s.peer, nil
}

func (c *Client) dial(ctx context.Context, addr string) (*session, error) {
	logger := c.logger.With(zap.String("addr", addr))
	conn, err := transport.Dial(ctx, "tcp", addr, c.codecType,
		transport.WithLogger(logger),
		transport.WithHeartbeat(c.heartbeat))
	if err != nil {
		return nil, err
	}

	opts := append([]rpc.Option{rpc.WithLogger(logger)}, c.peerOpts...)
	peer := rpc.NewPeer(conn, c.methods, opts...)
	go func() {
		err := conn.Serve(context.Background(), peer.Handle)
		if err != nil {
			logger.Warn("connection failed", zap.Error(err))
		}
		peer.Close(err)
	}()
	logger.Debug("dialed")
	return &session{conn: conn, peer: peer}, nil
}

// Call invokes method and decodes its result into reply. A nil reply discards
// the result. A remote failure is returned as a *message.Error.
func (c *Client) Call(ctx context.Context, method string, reply any, params ...any) error {
	peer, err := c.Peer(ctx, method)
	if err != nil {
		return err
	}

	// Send the request and wait for the response
	result, err := peer.Call(ctx, method, params...)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return message.Convert(result, reply)
}

// Notify sends a notification; no response is expected.
func (c *Client) Notify(ctx context.Context, method string, params ...any) error {
	peer, err := c.Peer(ctx, method)
	if err != nil {
		return err
	}
	return peer.Notify(ctx, method, params...)
}

// Close closes every connection. Calls still pending are rejected with rpc.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	var errs []error
	for addr, p := range c.pools {
		for _, s := range p.slots {
			if s != nil {
				if err := s.conn.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		delete(c.pools, addr)
	}
	return errors.Join(errs...)
}
