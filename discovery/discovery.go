// Package discovery defines the node-discovery capability the
// Connector consumes (spec.md §6) and provides two implementations: a
// fixed single-node discovery and an etcd-backed cluster discovery.
package discovery

import (
	"context"
	"time"
)

// NodeService is a candidate server endpoint plus an opaque tag the
// retry policy keys its per-node counters on.
type NodeService struct {
	Address string
	Port    int
	Tag     string
	// Weight favors this node in WeightedRandomBalancer. Zero means the
	// node was discovered from a source (e.g. Static) that doesn't carry
	// weight information; treat it as 1 there.
	Weight int
}

// Discovery resolves one NodeService to dial. Discover may fail with a
// domain error the Connector treats as connector-fatal: the first
// Discover error stops the Connector.
type Discovery interface {
	Discover(ctx context.Context) (NodeService, error)
	// MarkFailed tells the discovery source the Connector gave up on
	// node after exhausting its retry budget, so a well-behaved
	// implementation can avoid immediately re-offering it.
	MarkFailed(node NodeService)
}

// RetryPolicy is DiscoveryRetryPolicy from spec.md §3: per-node bounded
// retry counters with backoff.
type RetryPolicy interface {
	RecordSuccess(node NodeService)
	RecordFailure(node NodeService)
	ShouldRetry(node NodeService) bool
	Wait(node NodeService) time.Duration
}

// Balancer selects one candidate from a set of discovered nodes. It is
// the shape loadbalance's strategies satisfy, kept here (rather than
// imported from package loadbalance) so discovery's etcd-backed
// implementation can depend on it without an import cycle back to
// loadbalance.
type Balancer interface {
	Pick(nodes []NodeService) (*NodeService, error)
	Name() string
}
