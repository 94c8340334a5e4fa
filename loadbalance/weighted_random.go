package loadbalance

import (
	"fmt"
	"math/rand"

	"escore/discovery"
)

// WeightedRandomBalancer selects a node probabilistically based on its
// Weight. A node with weight 10 gets roughly 2x the traffic of one with
// weight 5. A node with Weight == 0 is treated as weight 1.
//
// Best for: heterogeneous servers (e.g. some have more CPU/memory).
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(nodes []discovery.NodeService) (*discovery.NodeService, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("loadbalance: no nodes available")
	}

	totalWeight := 0
	for _, n := range nodes {
		totalWeight += weightOf(n)
	}

	r := rand.Intn(totalWeight)
	for i := range nodes {
		r -= weightOf(nodes[i])
		if r < 0 {
			return &nodes[i], nil
		}
	}

	return nil, fmt.Errorf("loadbalance: unexpected error in weighted random selection")
}

func weightOf(n discovery.NodeService) int {
	if n.Weight <= 0 {
		return 1
	}
	return n.Weight
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
