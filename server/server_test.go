package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/deferred"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/rpc"
	"mini-jsonrpc/transport"
)

type Args struct {
	A, B int
}

type Arith struct{}

func (a *Arith) Add(args Args) int {
	return args.A + args.B
}

// startServer serves svr on a loopback port until the test ends.
func startServer(t *testing.T, svr *Server) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- svr.ServeListener(listener) }()
	t.Cleanup(func() {
		assert.NoError(t, svr.Shutdown(time.Second))
		assert.NoError(t, <-served)
	})
	return listener.Addr().String()
}

// dial returns a client peer connected to addr.
func dial(t *testing.T, addr string, methods rpc.MethodTable) *rpc.Peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "tcp", addr, codec.CodecTypeJSON, transport.WithHeartbeat(0))
	require.NoError(t, err)

	peer := rpc.NewPeer(conn, methods)
	go func() { peer.Close(conn.Serve(context.Background(), peer.Handle)) }()
	t.Cleanup(func() { conn.Close() })
	return peer
}

func TestServer(t *testing.T) {
	svr := NewServer(WithHeartbeat(0))
	require.NoError(t, svr.Register(&Arith{}))
	require.NoError(t, svr.HandleFunc("echo", func(s string) string { return s }))
	addr := startServer(t, svr)

	peer := dial(t, addr, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := peer.Call(ctx, "Arith.Add", Args{A: 1, B: 2})
	require.NoError(t, err)
	var sum int
	require.NoError(t, message.Convert(result, &sum))
	assert.Equal(t, 3, sum)

	result, err = peer.Call(ctx, "echo", "hello")
	require.NoError(t, err)
	var s string
	require.NoError(t, message.Convert(result, &s))
	assert.Equal(t, "hello", s)

	_, err = peer.Call(ctx, "Arith.Sub", Args{})
	assert.ErrorIs(t, err, message.ErrMethodNotFound)
}

func TestServerHandleFuncRejectsBadShape(t *testing.T) {
	svr := NewServer()
	assert.ErrorIs(t, svr.HandleFunc("bad", 42), rpc.ErrInvalidHandlerType)
}

func TestServerCallback(t *testing.T) {
	svr := NewServer(WithHeartbeat(0))
	require.NoError(t, svr.HandleFunc("whoami", func(ctx context.Context) (string, error) {
		peer, ok := PeerFromContext(ctx)
		if !ok {
			return "", message.ErrInternal.WithMessage("no peer")
		}
		name, err := peer.Call(ctx, "name")
		if err != nil {
			return "", err
		}
		var s string
		err = message.Convert(name, &s)
		return s, err
	}))
	addr := startServer(t, svr)

	peer := dial(t, addr, rpc.Methods{
		"name": rpc.MustFunc(func() string { return "alice" }),
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := peer.Call(ctx, "whoami")
	require.NoError(t, err)
	var s string
	require.NoError(t, message.Convert(result, &s))
	assert.Equal(t, "alice", s)
}

func TestServerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	svr := NewServer(WithHeartbeat(0))
	svr.Use(middleware.LoggingMiddleware(zap.New(core)))
	require.NoError(t, svr.Register(&Arith{}))
	addr := startServer(t, svr)

	peer := dial(t, addr, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := peer.Call(ctx, "Arith.Add", Args{A: 1, B: 1})
	require.NoError(t, err)

	assert.NotZero(t, logs.FilterField(zap.String("method", "Arith.Add")).Len())
}

func TestServerRegistry(t *testing.T) {
	reg := registry.NewStaticRegistry("Arith")
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()

	svr := NewServer(WithHeartbeat(0), WithRegistry(reg, "Arith", addr, 0))
	require.NoError(t, svr.Register(&Arith{}))

	served := make(chan error, 1)
	go func() { served <- svr.ServeListener(listener) }()

	require.Eventually(t, func() bool {
		instances, _ := reg.Discover(context.Background(), "Arith")
		return len(instances) == 1 && instances[0].Addr == addr
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, svr.Shutdown(time.Second))
	require.NoError(t, <-served)

	instances, err := reg.Discover(context.Background(), "Arith")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestServerShutdownClosesConnections(t *testing.T) {
	svr := NewServer(WithHeartbeat(0))
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- svr.ServeListener(listener) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "tcp", listener.Addr().String(), codec.CodecTypeJSON, transport.WithHeartbeat(0))
	require.NoError(t, err)
	peer := rpc.NewPeer(conn, nil)
	closed := make(chan struct{})
	go func() {
		peer.Close(conn.Serve(context.Background(), peer.Handle))
		close(closed)
	}()

	// The server has accepted once a call is answered
	_, err = peer.Call(ctx, "missing")
	require.ErrorIs(t, err, message.ErrMethodNotFound)

	require.NoError(t, svr.Shutdown(time.Second))
	require.NoError(t, <-served)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("connection not closed by shutdown")
	}
	assert.Equal(t, listener.Addr(), svr.Addr())
}

// 关闭时仍在计算的延迟结果必须送达客户端
func TestServerShutdownWaitsForDeferredReply(t *testing.T) {
	svr := NewServer(WithHeartbeat(0))
	started := make(chan struct{})
	svr.Handle("slow", rpc.HandlerFunc(func(ctx context.Context, params message.Params) (any, error) {
		close(started)
		return deferred.Go(func() (any, error) {
			time.Sleep(200 * time.Millisecond)
			return "finished", nil
		}), nil
	}))
	addr := startServer(t, svr)
	peer := dial(t, addr, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	call, err := peer.Request(ctx, "slow")
	require.NoError(t, err)

	<-started
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, svr.Shutdown(2*time.Second))

	result, err := call.Wait(ctx)
	require.NoError(t, err)
	var s string
	require.NoError(t, message.Convert(result, &s))
	assert.Equal(t, "finished", s)
}
