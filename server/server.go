// Package server accepts connections and runs one symmetric rpc.Peer per
// connection, all sharing a single method table.
//
// Request processing pipeline:
//
//	Accept conn → serveConn (transport.Conn.Serve reads frames)
//	  → for each envelope: go peer.Handle (parallel processing)
//	    → classify → Middleware Chain → method handler → reply over the same conn
//
// Handlers may call back into the remote side through PeerFromContext.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/rpc"
	"mini-jsonrpc/transport"
)

// DefaultTTL is the registry lease used when WithRegistry is given no TTL.
const DefaultTTL = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and its connections.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCodec sets the codec used for outbound frames.
func WithCodec(codecType codec.CodecType) Option {
	return func(s *Server) {
		s.codecType = codecType
	}
}

// WithHeartbeat sets the per-connection keep-alive interval; zero disables it.
func WithHeartbeat(interval time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = interval
	}
}

// WithRegistry registers the server as an instance of serviceName at
// advertiseAddr when it starts serving, and deregisters it on Shutdown.
//
// advertiseAddr differs from the listen address because ":8080" resolves to
// "[::]:8080" locally while the registry needs a routable address.
func WithRegistry(reg registry.Registry, serviceName, advertiseAddr string, ttl time.Duration) Option {
	return func(s *Server) {
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		s.registry = reg
		s.serviceName = serviceName
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

// Server is the JSON-RPC server. Methods are registered before Serve is called.
type Server struct {
	methods     rpc.Methods             // Shared by every connection
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	codecType   codec.CodecType
	heartbeat   time.Duration
	logger      *zap.Logger

	registry      registry.Registry // nil if not using discovery
	serviceName   string
	advertiseAddr string
	ttl           time.Duration

	listener net.Listener
	wg       sync.WaitGroup // Tracks in-flight requests for graceful shutdown
	shutdown atomic.Bool    // Set to true during shutdown to suppress Accept errors
	ctx      context.Context
	cancel   context.CancelFunc // Closes every connection
	mu       sync.Mutex         // Guards listener
}

// NewServer creates a new server with an empty method table.
func NewServer(opts ...Option) *Server {
	s := &Server{
		methods:   make(rpc.Methods),
		codecType: codec.CodecTypeJSON,
		heartbeat: transport.DefaultHeartbeat,
		logger:    zap.NewNop(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register registers a service receiver (e.g., &Arith{}). Its exported
// methods of a suitable shape become callable as "Type.Method".
func (svr *Server) Register(rcvr any) error {
	methods, err := rpc.NewService(rcvr)
	if err != nil {
		return err
	}
	svr.methods.Merge(methods)
	return nil
}

// RegisterName is like Register with an explicit service name.
func (svr *Server) RegisterName(name string, rcvr any) error {
	methods, err := rpc.NewNamedService(name, rcvr)
	if err != nil {
		return err
	}
	svr.methods.Merge(methods)
	return nil
}

// HandleFunc registers fn under method, see rpc.Func for accepted shapes.
func (svr *Server) HandleFunc(method string, fn any) error {
	h, err := rpc.Func(fn)
	if err != nil {
		return fmt.Errorf("method %s: %w", method, err)
	}
	svr.methods[method] = h
	return nil
}

// Handle registers h under method.
func (svr *Server) Handle(method string, h rpc.Handler) {
	svr.methods[method] = h
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on the given address and calls ServeListener.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener)
}

// ServeListener registers the server with its registry, if any, and enters the
// Accept loop. It returns nil after Shutdown.
func (svr *Server) ServeListener(listener net.Listener) error {
	svr.mu.Lock()
	svr.listener = listener
	svr.mu.Unlock()

	if svr.registry != nil {
		ctx, cancel := context.WithTimeout(svr.ctx, 5*time.Second)
		err := svr.registry.Register(ctx, svr.serviceName, registry.ServiceInstance{
			Addr: svr.advertiseAddr,
		}, svr.ttl) // KeepAlive renews the lease automatically
		cancel()
		if err != nil {
			listener.Close()
			return fmt.Errorf("register %s: %w", svr.serviceName, err)
		}
		svr.logger.Info("registered service",
			zap.String("service", svr.serviceName),
			zap.String("addr", svr.advertiseAddr))
	}

	svr.logger.Info("serving", zap.Stringer("addr", listener.Addr()))
	// Accept loop: one goroutine per connection
	for {
		conn, err := listener.Accept()
		if err != nil {
			// During shutdown, listener.Close() causes Accept to return an error.
			// Check the shutdown flag to distinguish intentional close from real errors.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.ServeConn(conn)
	}
}

// Addr returns the listener address, or nil before ServeListener is called.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

type peerKey struct{}

// PeerFromContext returns the peer of the connection a request arrived on.
func PeerFromContext(ctx context.Context) (*rpc.Peer, bool) {
	p, ok := ctx.Value(peerKey{}).(*rpc.Peer)
	return p, ok
}

// ServeConn runs one connection until it closes. Pending outbound calls made
// through the connection's peer are rejected with rpc.ErrClosed.
func (svr *Server) ServeConn(nc net.Conn) {
	logger := svr.logger.With(zap.Stringer("remote", nc.RemoteAddr()))
	conn := transport.NewConn(nc, svr.codecType,
		transport.WithLogger(logger),
		transport.WithHeartbeat(svr.heartbeat))
	peer := rpc.NewPeer(conn, svr.methods,
		rpc.WithLogger(logger),
		rpc.WithMiddleware(svr.middlewares...),
		rpc.WithTracker(&svr.wg)) // deferred replies count as in-flight

	err := conn.Serve(svr.ctx, func(ctx context.Context, env *message.Envelope) {
		// Track this envelope for graceful shutdown
		svr.wg.Add(1)
		defer svr.wg.Done()
		peer.Handle(context.WithValue(ctx, peerKey{}, peer), env)
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("connection failed", zap.Error(err))
	}
	peer.Close(err)
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop routing to this server)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener (stop accepting new connections)
//  4. Wait for in-flight requests, deferred replies included, to finish (with timeout)
//  5. Close every connection
func (svr *Server) Shutdown(timeout time.Duration) error {
	defer svr.cancel()

	// Step 1: Deregister FIRST so clients stop sending new requests
	if svr.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := svr.registry.Deregister(ctx, svr.serviceName, svr.advertiseAddr); err != nil {
			svr.logger.Warn("deregister failed", zap.String("service", svr.serviceName), zap.Error(err))
		}
		cancel()
	}

	// Step 2: Set shutdown flag BEFORE closing listener
	// If we close first, the Accept error fires before the flag is set,
	// and Serve() would return a real error instead of nil
	svr.mu.Lock()
	svr.shutdown.Store(true)
	listener := svr.listener
	svr.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	// Step 3: Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil // All requests completed
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for ongoing requests to finish")
	}
}
