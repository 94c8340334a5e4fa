package discovery

import (
	"math/rand"
	"sync"
	"time"
)

// BoundedRetryPolicy implements RetryPolicy with a fixed per-node
// attempt budget and exponential backoff with jitter, the shape ported
// from the teacher's exponential-backoff retry middleware
// (baseDelay * 2^attempt, capped) but keyed per node instead of per
// call.
type BoundedRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu       sync.Mutex
	attempts map[string]int
}

// NewBoundedRetryPolicy creates a policy allowing maxRetries consecutive
// failures per node before ShouldRetry reports false. maxRetries == 0
// means "never retry this node" (still tries it once via the
// Connector's initial dial, per the transition table in spec.md §4.5).
func NewBoundedRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *BoundedRetryPolicy {
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &BoundedRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		attempts:   make(map[string]int),
	}
}

// nodeKey (defined in etcd.go) keys attempts by address:port, not just
// Tag, so two nodes sharing a host or an empty/duplicate Tag never
// collide onto the same attempt budget.

func (p *BoundedRetryPolicy) RecordSuccess(node NodeService) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, nodeKey(node))
}

func (p *BoundedRetryPolicy) RecordFailure(node NodeService) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[nodeKey(node)]++
}

// ShouldRetry reports whether node may be dialed again after its most
// recent failure. With retries_per_node = N, a node is attempted N+1
// times in total (the initial dial plus N retries) before the
// Connector gives up on it and restarts from discovery.
func (p *BoundedRetryPolicy) ShouldRetry(node NodeService) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[nodeKey(node)] <= p.maxRetries
}

// Wait returns the exponential-backoff delay for node's current attempt
// count, with up to ±20% jitter so many clients retrying the same node
// after a shared outage don't all redial in lockstep.
func (p *BoundedRetryPolicy) Wait(node NodeService) time.Duration {
	p.mu.Lock()
	attempt := p.attempts[nodeKey(node)]
	p.mu.Unlock()

	delay := p.baseDelay * time.Duration(1<<uint(attempt))
	if delay > p.maxDelay || delay <= 0 {
		delay = p.maxDelay
	}
	spread := int64(delay) / 5 // 20%
	jitter := time.Duration(rand.Int63n(2*spread + 1))
	return delay - time.Duration(spread) + jitter
}
