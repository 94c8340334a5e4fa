package loadbalance

import (
	"testing"

	"escore/discovery"
)

var testNodes = []discovery.NodeService{
	{Address: "127.0.0.1", Port: 8001, Weight: 10},
	{Address: "127.0.0.1", Port: 8002, Weight: 5},
	{Address: "127.0.0.1", Port: 8003, Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	results := make([]int, 3)
	for i := 0; i < 3; i++ {
		node, err := b.Pick(testNodes)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = node.Port
	}

	node, _ := b.Pick(testNodes)
	if node.Port != results[0] {
		t.Fatalf("expect wrap around to %d, got %d", results[0], node.Port)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); err == nil {
		t.Fatal("expect error for empty node set")
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[int]int{}
	n := 10000
	for i := 0; i < n; i++ {
		node, err := b.Pick(testNodes)
		if err != nil {
			t.Fatal(err)
		}
		counts[node.Port]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[8001]) / float64(counts[8002])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio 8001/8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestConsistentHashStableUnderFixedCandidateSet(t *testing.T) {
	b := NewConsistentHashBalancer("conn-1")

	node1, err := b.Pick(testNodes)
	if err != nil {
		t.Fatal(err)
	}
	node2, err := b.Pick(testNodes)
	if err != nil {
		t.Fatal(err)
	}
	if node1.Port != node2.Port {
		t.Fatalf("same key mapped to different nodes across calls: %d vs %d", node1.Port, node2.Port)
	}
}

func TestConsistentHashDifferentKeysSpreadAcrossNodes(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 100; i++ {
		b := NewConsistentHashBalancer(string(rune('a' + i%26)))
		node, err := b.Pick(testNodes)
		if err != nil {
			t.Fatal(err)
		}
		seen[node.Port] = true
	}

	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different nodes, got %d", len(seen))
	}
}
