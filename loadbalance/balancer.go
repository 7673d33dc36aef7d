// Package loadbalance provides selection strategies for distributing
// gateway requests across healthy service instances.
//
// Two strategies are implemented:
//   - RoundRobin: even rotation, one independent cursor per service
//   - Random:     uniform random pick, no per-service state
package loadbalance

import (
	"errors"

	"github.com/ruvnet/alienator-sub000/registry"
)

// ErrNoInstances is returned when a strategy is asked to pick from an
// empty instance list.
var ErrNoInstances = errors.New("no instances available")

// Balancer is the interface for load balancing strategies. Pick is called
// on every routed request and must be safe for concurrent use.
type Balancer interface {
	// Pick selects one instance from the healthy list for the named
	// service. The instances slice is a snapshot owned by the caller.
	Pick(serviceName string, instances []registry.ServiceInstance) (registry.ServiceInstance, error)

	// Name returns the strategy name for logging.
	Name() string
}
