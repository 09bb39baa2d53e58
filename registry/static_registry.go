package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// StaticRegistry is an in-memory Registry. TTLs are ignored.
type StaticRegistry struct {
	mu       sync.RWMutex
	services map[string]map[string]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

// NewStaticRegistry returns a registry pre-populated with instances of serviceName.
func NewStaticRegistry(serviceName string, instances ...ServiceInstance) *StaticRegistry {
	r := &StaticRegistry{
		services: make(map[string]map[string]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
	for _, inst := range instances {
		r.put(serviceName, inst)
	}
	return r
}

func (r *StaticRegistry) put(serviceName string, instance ServiceInstance) {
	if r.services[serviceName] == nil {
		r.services[serviceName] = make(map[string]ServiceInstance)
	}
	r.services[serviceName][instance.Addr] = instance
}

func (r *StaticRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ time.Duration) error {
	r.mu.Lock()
	r.put(serviceName, instance)
	r.mu.Unlock()
	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	delete(r.services[serviceName], addr)
	r.mu.Unlock()
	r.notify(serviceName)
	return nil
}

// Discover returns the instances sorted by address.
func (r *StaticRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot(serviceName), nil
}

func (r *StaticRegistry) snapshot(serviceName string) []ServiceInstance {
	instances := make([]ServiceInstance, 0, len(r.services[serviceName]))
	for _, inst := range r.services[serviceName] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Addr < instances[j].Addr
	})
	return instances
}

// Watch emits the latest instance list after every change. A slow reader
// only ever sees the most recent list.
func (r *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		watchers := r.watchers[serviceName]
		for i, w := range watchers {
			if w == ch {
				r.watchers[serviceName] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *StaticRegistry) notify(serviceName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instances := r.snapshot(serviceName)
	for _, ch := range r.watchers[serviceName] {
		// Drop a stale list nobody has read yet
		select {
		case <-ch:
		default:
		}
		ch <- instances
	}
}
