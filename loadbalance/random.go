package loadbalance

import (
	"math/rand"

	"github.com/ruvnet/alienator-sub000/registry"
)

// Random picks a uniformly random instance. Stateless, so it needs no
// per-service bookkeeping; useful when callers want to avoid thundering
// herds after an instance recovers.
type Random struct{}

// NewRandom creates a random balancer.
func NewRandom() *Random {
	return &Random{}
}

// Pick returns a uniformly random instance.
func (b *Random) Pick(_ string, instances []registry.ServiceInstance) (registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return registry.ServiceInstance{}, ErrNoInstances
	}
	return instances[rand.Intn(len(instances))], nil
}

func (b *Random) Name() string {
	return "random"
}
