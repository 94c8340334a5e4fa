package loadbalance

import (
	"fmt"
	"sync/atomic"

	"escore/discovery"
)

// RoundRobinBalancer distributes picks evenly across all candidates in
// order. Uses an atomic counter for lock-free, goroutine-safe operation.
//
// Best for: stateless servers where all candidates have similar capacity.
type RoundRobinBalancer struct {
	counter int64 // atomic, incremented on each Pick
}

func (b *RoundRobinBalancer) Pick(nodes []discovery.NodeService) (*discovery.NodeService, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("loadbalance: no nodes available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(nodes))
	return &nodes[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
