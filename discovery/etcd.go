package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// etcdPrefix namespaces this client's candidate nodes within a shared
// etcd keyspace: /escore/nodes/{address}:{port}.
const etcdPrefix = "/escore/nodes/"

// cooldown is how long MarkFailed excludes a node from the candidate
// cache before it can be offered again by a later Discover call.
const cooldown = 10 * time.Second

// EtcdClusterDiscovery resolves cluster members by reading an etcd
// prefix (a Get on every Discover; Watch streams changes separately)
// maintained by the servers themselves (each node PUTs its own
// NodeService record with a TTL lease — that registration side lives
// outside this client library) and hands the candidate set to a
// Balancer to pick one, ported from registry/etcd_registry.go's
// Get+Watch pair.
type EtcdClusterDiscovery struct {
	client   *clientv3.Client
	balancer Balancer

	mu       sync.Mutex
	failedAt map[string]time.Time
}

// NewEtcdClusterDiscovery connects to the given etcd endpoints. balancer
// selects one NodeService from the currently registered candidates on
// every Discover call.
func NewEtcdClusterDiscovery(endpoints []string, balancer Balancer) (*EtcdClusterDiscovery, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, fmt.Errorf("discovery: connect etcd: %w", err)
	}
	return &EtcdClusterDiscovery{
		client:   c,
		balancer: balancer,
		failedAt: make(map[string]time.Time),
	}, nil
}

func (d *EtcdClusterDiscovery) Discover(ctx context.Context) (NodeService, error) {
	resp, err := d.client.Get(ctx, etcdPrefix, clientv3.WithPrefix())
	if err != nil {
		return NodeService{}, fmt.Errorf("discovery: etcd get: %w", err)
	}

	nodes := make([]NodeService, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var node NodeService
		if err := json.Unmarshal(kv.Value, &node); err != nil {
			continue // skip malformed entries, matching the teacher's Discover
		}
		if d.isCoolingDown(node) {
			continue
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 0 {
		return NodeService{}, fmt.Errorf("discovery: no candidate nodes available")
	}

	picked, err := d.balancer.Pick(nodes)
	if err != nil {
		return NodeService{}, fmt.Errorf("discovery: %s: %w", d.balancer.Name(), err)
	}
	return *picked, nil
}

func (d *EtcdClusterDiscovery) MarkFailed(node NodeService) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failedAt[nodeKey(node)] = time.Now()
}

func (d *EtcdClusterDiscovery) isCoolingDown(node NodeService) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	failedAt, ok := d.failedAt[nodeKey(node)]
	if !ok {
		return false
	}
	if time.Since(failedAt) > cooldown {
		delete(d.failedAt, nodeKey(node))
		return false
	}
	return true
}

// Watch streams updated candidate sets whenever etcd reports a change
// under the node prefix, ported from the teacher's Watch. Callers that
// only need request-time resolution should use Discover instead; Watch
// exists for a future live-rebalancing façade.
func (d *EtcdClusterDiscovery) Watch(ctx context.Context) <-chan []NodeService {
	out := make(chan []NodeService, 1)
	go func() {
		watchChan := d.client.Watch(ctx, etcdPrefix, clientv3.WithPrefix())
		for range watchChan {
			resp, err := d.client.Get(ctx, etcdPrefix, clientv3.WithPrefix())
			if err != nil {
				continue
			}
			nodes := make([]NodeService, 0, len(resp.Kvs))
			for _, kv := range resp.Kvs {
				var node NodeService
				if err := json.Unmarshal(kv.Value, &node); err == nil {
					nodes = append(nodes, node)
				}
			}
			select {
			case out <- nodes:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func nodeKey(node NodeService) string {
	return node.Address + ":" + strconv.Itoa(node.Port)
}
