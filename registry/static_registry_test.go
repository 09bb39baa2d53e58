package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRegisterAndDiscover(t *testing.T) {
	ctx := context.Background()
	reg := NewStaticRegistry("Arith", ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5})

	require.NoError(t, reg.Register(ctx, "Arith", ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10}, time.Second))

	instances, err := reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "127.0.0.1:8001", instances[0].Addr)
	assert.Equal(t, "127.0.0.1:8002", instances[1].Addr)

	require.NoError(t, reg.Deregister(ctx, "Arith", "127.0.0.1:8001"))
	instances, err = reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	instances, err = reg.Discover(ctx, "Unknown")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestStaticWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewStaticRegistry("Arith")
	updates := reg.Watch(ctx, "Arith")

	require.NoError(t, reg.Register(ctx, "Arith", ServiceInstance{Addr: "a"}, 0))
	require.NoError(t, reg.Register(ctx, "Arith", ServiceInstance{Addr: "b"}, 0))

	// Only the latest list is buffered
	instances := <-updates
	assert.Len(t, instances, 2)

	cancel()
	for range updates {
	}
}
