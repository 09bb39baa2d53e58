package loadbalance

import (
	"errors"
	"fmt"
	"testing"

	"mini-jsonrpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all instances
	results := make([]string, 3)
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances, "")
		if err != nil {
			t.Fatal(err)
		}
		results[i] = inst.Addr
		seen[inst.Addr] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expect every instance once, got %v", results)
	}

	// Pick again, should wrap around to first
	inst, _ := b.Pick(testInstances, "")
	if inst.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], inst.Addr)
	}
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		_, err := b.Pick([]registry.ServiceInstance{}, "k")
		if !errors.Is(err, registry.ErrNoInstances) {
			t.Fatalf("%s: expect ErrNoInstances, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances, "")
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick([]registry.ServiceInstance{{Addr: ":9001"}}, "")
	if err != nil || inst.Addr != ":9001" {
		t.Fatalf("expect :9001, got %v, %v", inst, err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	// Same key should always map to the same instance
	inst1, _ := b.Pick(testInstances, "user-123")
	inst2, _ := b.Pick(testInstances, "user-123")
	if inst1.Addr != inst2.Addr {
		t.Fatalf("same key mapped to different instances: %s vs %s", inst1.Addr, inst2.Addr)
	}

	// Different keys should (likely) map to different instances
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, _ := b.Pick(testInstances, fmt.Sprintf("key-%d", i))
		seen[inst.Addr] = true
	}

	// With 100 different keys and 3 nodes, we should hit at least 2
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different instances, got %d", len(seen))
	}
}

func TestConsistentHashRebuild(t *testing.T) {
	b := NewConsistentHashBalancer()
	if _, err := b.Pick(testInstances, "k"); err != nil {
		t.Fatal(err)
	}

	only := []registry.ServiceInstance{{Addr: ":9000"}}
	inst, err := b.Pick(only, "k")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Addr != ":9000" {
		t.Fatalf("expect ring rebuilt for new instance set, got %s", inst.Addr)
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":                "RoundRobin",
		"round_robin":     "RoundRobin",
		"weighted_random": "WeightedRandom",
		"consistent_hash": "ConsistentHash",
	} {
		b, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		if b.Name() != want {
			t.Errorf("New(%q) = %s, want %s", name, b.Name(), want)
		}
	}
	if _, err := New("fastest"); err == nil {
		t.Error("expect error for unknown balancer")
	}
}
