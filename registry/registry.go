package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNoInstances is returned when a service has nothing registered.
var ErrNoInstances = errors.New("registry: no instances available")

type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl time.Duration) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}

// serviceKey is the etcd key of one instance.
func serviceKey(serviceName, addr string) string {
	return servicePrefix(serviceName) + addr
}

func servicePrefix(serviceName string) string {
	return "/mini-jsonrpc/" + serviceName + "/"
}
