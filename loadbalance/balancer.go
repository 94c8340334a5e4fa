// Package loadbalance provides strategies for picking one candidate
// node out of the set a Discovery implementation returns.
//
// Three strategies are implemented:
//   - RoundRobin:      stateless servers, equal capacity
//   - WeightedRandom:  heterogeneous servers (different CPU/memory)
//   - ConsistentHash:  minimizes which server a reconnect lands on when
//     the candidate set changes
//
// Each satisfies discovery.Balancer structurally, so discovery's
// etcd-backed implementation can accept one without importing this
// package.
package loadbalance

import "escore/discovery"

// Balancer re-states discovery.Balancer so callers that only need load
// balancing (and not the rest of package discovery) can depend on this
// package alone.
type Balancer interface {
	Pick(nodes []discovery.NodeService) (*discovery.NodeService, error)
	Name() string
}
