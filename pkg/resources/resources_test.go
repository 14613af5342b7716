package resources

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerCycle(t *testing.T) {
	b := NewBreaker("test", 3, 50*time.Millisecond)

	if b.State() != StateClosed {
		t.Fatalf("initial state = %q", b.State())
	}

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("closed breaker rejected call %d: %v", i, err)
		}
		b.Failure()
	}
	if b.State() != StateOpen {
		t.Fatalf("state after threshold failures = %q, want open", b.State())
	}

	var oe *OpenError
	if err := b.Allow(); !errors.As(err, &oe) {
		t.Fatalf("open breaker allowed call: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected after window: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %q, want half-open", b.State())
	}

	b.Success()
	if b.State() != StateClosed {
		t.Errorf("state after probe success = %q, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", 1, 30*time.Millisecond)
	b.Failure()
	time.Sleep(40 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.Failure()
	if b.State() != StateOpen {
		t.Errorf("state = %q, want open after failed probe", b.State())
	}
}

func TestMemoryCriticalForcesEviction(t *testing.T) {
	released := map[string]bool{}
	m := NewMemoryManager(StrategyLRU, 100, 150, 0)

	m.Register("a", 80, func() { released["a"] = true })
	m.Touch("a")
	m.Register("b", 80, func() { released["b"] = true })

	// 160 > critical; the least recently used not-a... both recently
	// registered, a touched first then b registered. Eviction must bring
	// usage back to the warning threshold.
	if m.Usage() > 100 {
		t.Errorf("usage after critical = %d, want <= 100", m.Usage())
	}
	if !released["a"] && !released["b"] {
		t.Error("no release callback ran")
	}
}

func TestMemoryLRUOrder(t *testing.T) {
	var order []string
	m := NewMemoryManager(StrategyLRU, 10, 0, 0)

	m.Register("old", 5, func() { order = append(order, "old") })
	time.Sleep(2 * time.Millisecond)
	m.Register("new", 5, func() { order = append(order, "new") })
	m.Touch("old")

	m.Register("extra", 5, nil)
	m.Sweep()

	if len(order) == 0 || order[0] != "new" {
		t.Errorf("eviction order = %v, want new first (old was touched)", order)
	}
}

func TestMemoryFIFOOrder(t *testing.T) {
	var order []string
	m := NewMemoryManager(StrategyFIFO, 10, 0, 0)

	m.Register("first", 5, func() { order = append(order, "first") })
	m.Register("second", 5, func() { order = append(order, "second") })
	m.Touch("first")
	m.Register("third", 5, func() { order = append(order, "third") })
	m.Sweep()

	if len(order) == 0 || order[0] != "first" {
		t.Errorf("eviction order = %v, want first despite touch", order)
	}
}

func TestMemorySizeOrder(t *testing.T) {
	var order []string
	m := NewMemoryManager(StrategySize, 10, 0, 0)

	m.Register("small", 2, func() { order = append(order, "small") })
	m.Register("big", 9, func() { order = append(order, "big") })
	m.Sweep()

	if len(order) == 0 || order[0] != "big" {
		t.Errorf("eviction order = %v, want big first", order)
	}
}

func TestMemoryTTLOnlyEvictsExpired(t *testing.T) {
	released := map[string]bool{}
	m := NewMemoryManager(StrategyTTL, 1, 0, 20*time.Millisecond)

	m.Register("old", 100, func() { released["old"] = true })
	time.Sleep(30 * time.Millisecond)
	m.Register("fresh", 100, func() { released["fresh"] = true })
	m.Sweep()

	if !released["old"] {
		t.Error("expired entry survived")
	}
	if released["fresh"] {
		t.Error("fresh entry evicted despite usage over threshold")
	}
}

func TestMemoryReleaseStopsTracking(t *testing.T) {
	m := NewMemoryManager(StrategyLRU, 0, 0, 0)
	m.Register("x", 10, nil)
	if m.Usage() != 10 || m.Count() != 1 {
		t.Fatalf("usage = %d count = %d", m.Usage(), m.Count())
	}
	m.Release("x")
	if m.Usage() != 0 || m.Count() != 0 {
		t.Errorf("usage = %d count = %d after release", m.Usage(), m.Count())
	}
}
