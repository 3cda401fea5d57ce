// Package loadbalance provides load balancing strategies for distributing
// exchanges across the nodes serving a function definition.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless functions, equal-capacity nodes
//   - WeightedRandom:  Heterogeneous nodes (different CPU/memory)
//   - ConsistentHash:  Session affinity — keep the channel exchanges of one
//     caller on one node, e.g. for reactive functions that accumulate
//     per-stream state
package loadbalance

import "stream-rpc/registry"

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before opening each exchange to select a node.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every exchange open — must be goroutine-safe.
	Pick(instances []registry.Instance) (*registry.Instance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
