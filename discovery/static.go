package discovery

import "context"

// Static discovery always resolves to the same configured node. It is
// used when Config.DiscoveryHost is unset (spec.md §6: "direct dial
// target"). MarkFailed is a no-op — there is no alternate node to fall
// back to. The Connector retries this node with backoff per its
// DiscoveryRetryPolicy budget; once that budget is spent, each restart
// from discovery resolves to this same node again, so dialing continues
// without per-node backoff, paced only by the Connector's redial rate
// limit.
type Static struct {
	node NodeService
}

// NewStatic returns a Discovery that always resolves to node.
func NewStatic(address string, port int) *Static {
	return &Static{node: NodeService{Address: address, Port: port, Tag: "static"}}
}

func (s *Static) Discover(ctx context.Context) (NodeService, error) {
	return s.node, nil
}

func (s *Static) MarkFailed(NodeService) {}
