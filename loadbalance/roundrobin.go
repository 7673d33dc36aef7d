package loadbalance

import (
	"sync"

	"github.com/ruvnet/alienator-sub000/registry"
)

// RoundRobin rotates evenly through a service's instances. Each service
// keeps its own cursor, so one service's traffic never perturbs another's
// rotation position.
type RoundRobin struct {
	mu      sync.Mutex
	cursors map[string]uint64
}

// NewRoundRobin creates a round-robin balancer with no cursors yet.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{cursors: make(map[string]uint64)}
}

// Pick returns the next instance in rotation for the service.
func (b *RoundRobin) Pick(serviceName string, instances []registry.ServiceInstance) (registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return registry.ServiceInstance{}, ErrNoInstances
	}

	b.mu.Lock()
	cursor := b.cursors[serviceName]
	b.cursors[serviceName] = cursor + 1
	b.mu.Unlock()

	return instances[cursor%uint64(len(instances))], nil
}

func (b *RoundRobin) Name() string {
	return "round_robin"
}
