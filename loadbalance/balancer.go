// Package loadbalance picks which daemon instance serves the next call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity daemons
//   - WeightedRandom:  heterogeneous daemons (different CPU/disk)
//   - ConsistentHash:  method affinity, e.g. keep all "wallet.*" calls on one node
package loadbalance

import (
	"bitcoin-rpc/registry"
	"errors"
	"fmt"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer is the interface for load balancing strategies.
// The discovery transport calls Pick() before each request with the method name as key.
type Balancer interface {
	// Pick selects one instance from the available list. Must be goroutine-safe.
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/config).
	Name() string
}

// New returns the balancer registered under name; "" means round robin.
func New(name string) (Balancer, error) {
	switch name {
	case "", "RoundRobin", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "WeightedRandom", "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "ConsistentHash", "consistent_hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
