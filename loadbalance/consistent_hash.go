package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"escore/discovery"
)

// ConsistentHashBalancer maps a fixed routing key onto a hash ring built
// fresh from the candidate set on every Pick. The same key lands on the
// same node as long as that node stays in the candidate set, so a
// reconnecting Connector keeps landing on the same server instead of
// churning across every discovered node — useful when servers hold
// per-connection state worth preserving across a redial.
//
// Virtual nodes: each candidate is hashed onto N points on the ring.
// Without them, a handful of candidates can cluster together on the
// ring and receive uneven weight; 100 virtual nodes per candidate
// keeps the ring statistically uniform.
type ConsistentHashBalancer struct {
	key      string
	replicas int
}

// NewConsistentHashBalancer returns a balancer that always routes key
// onto the same candidate, for as long as that candidate keeps
// appearing in the set passed to Pick.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{key: key, replicas: 100}
}

func (b *ConsistentHashBalancer) Pick(nodes []discovery.NodeService) (*discovery.NodeService, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("loadbalance: no nodes available")
	}

	ring := make([]uint32, 0, len(nodes)*b.replicas)
	byHash := make(map[uint32]*discovery.NodeService, len(nodes)*b.replicas)
	for i := range nodes {
		for r := 0; r < b.replicas; r++ {
			point := fmt.Sprintf("%s:%d#%d", nodes[i].Address, nodes[i].Port, r)
			hash := crc32.ChecksumIEEE([]byte(point))
			ring = append(ring, hash)
			byHash[hash] = &nodes[i]
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i] < ring[j] })

	hash := crc32.ChecksumIEEE([]byte(b.key))
	idx := sort.Search(len(ring), func(i int) bool { return ring[i] >= hash })
	if idx == len(ring) {
		idx = 0
	}

	return byHash[ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
