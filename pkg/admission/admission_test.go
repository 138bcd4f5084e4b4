package admission

import (
	"sync"
	"testing"
	"time"
)

type testState struct {
	Counter int
}

func TestStoreGetOrCreate(t *testing.T) {
	s := NewStore(time.Minute, func() *testState { return &testState{} })

	a := s.Get("a")
	if a == nil {
		t.Fatal("Get returned nil")
	}
	a.Counter = 42

	// Same ID returns the same pointer.
	a2 := s.Get("a")
	if a2 != a {
		t.Error("expected same pointer for same key")
	}
	if a2.Counter != 42 {
		t.Errorf("expected Counter=42, got %d", a2.Counter)
	}

	// Different ID returns a fresh instance.
	b := s.Get("b")
	if b == a {
		t.Error("different keys should return different pointers")
	}
	if s.Len() != 2 {
		t.Errorf("expected Len()=2, got %d", s.Len())
	}
}

func TestStoreTTLExpiry(t *testing.T) {
	s := NewStore(50*time.Millisecond, func() *testState { return &testState{} })

	s.Get("ephemeral")
	time.Sleep(80 * time.Millisecond)
	s.Cleanup()

	if s.Len() != 0 {
		t.Errorf("expected 0 after TTL expiry, got %d", s.Len())
	}
}

func TestIdempotencyGuard(t *testing.T) {
	g := NewIdempotencyGuard(time.Minute)

	jobID, duplicate := g.Claim("key-1")
	if duplicate {
		t.Error("first claim should not be a duplicate")
	}
	if jobID != "" {
		t.Errorf("winner gets no job ID, got %s", jobID)
	}
	g.Fulfill("key-1", "job_aaa")

	// Retried request gets the original job back.
	jobID, duplicate = g.Claim("key-1")
	if !duplicate {
		t.Error("second claim should be a duplicate")
	}
	if jobID != "job_aaa" {
		t.Errorf("expected original job_aaa, got %s", jobID)
	}
	if jobID, ok := g.Lookup("key-1"); !ok || jobID != "job_aaa" {
		t.Errorf("lookup: expected job_aaa, got %s (ok=%v)", jobID, ok)
	}

	// A different key is independent.
	if _, duplicate := g.Claim("key-2"); duplicate {
		t.Error("expected fresh claim for key-2")
	}
}

func TestIdempotencyGuard_ClaimBeforeFulfill(t *testing.T) {
	g := NewIdempotencyGuard(time.Minute)

	// A claimed-but-unfulfilled key already blocks replays, so a
	// concurrent duplicate cannot start a second job while the first
	// request is still creating its own.
	if _, duplicate := g.Claim("key-1"); duplicate {
		t.Fatal("first claim should win")
	}
	jobID, duplicate := g.Claim("key-1")
	if !duplicate {
		t.Error("replay during the claim window should be a duplicate")
	}
	if jobID != "" {
		t.Errorf("job ID should be empty before Fulfill, got %s", jobID)
	}
	if _, ok := g.Lookup("key-1"); ok {
		t.Error("lookup should not report an unfulfilled claim")
	}
}

func TestIdempotencyGuard_Release(t *testing.T) {
	g := NewIdempotencyGuard(time.Minute)

	if _, duplicate := g.Claim("key-1"); duplicate {
		t.Fatal("first claim should win")
	}

	// A rejected request frees the key for a later retry.
	g.Release("key-1")
	if _, duplicate := g.Claim("key-1"); duplicate {
		t.Error("released key should be claimable again")
	}
}

func TestIdempotencyGuard_Concurrent(t *testing.T) {
	g := NewIdempotencyGuard(time.Minute)

	var wg sync.WaitGroup
	winners := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, duplicate := g.Claim("shared")
			winners[n] = !duplicate
		}(i)
	}
	wg.Wait()

	count := 0
	for _, won := range winners {
		if won {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning claim, got %d", count)
	}
}

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter(2, time.Minute)
	base := time.Unix(1000, 0)
	now := base
	r.now = func() time.Time { return now }

	if ok, _ := r.Allow("device-1"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := r.Allow("device-1"); !ok {
		t.Fatal("second request should be allowed")
	}

	ok, retryAfter := r.Allow("device-1")
	if ok {
		t.Fatal("third request should be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Errorf("retryAfter should be within the window, got %v", retryAfter)
	}

	// Another device is unaffected.
	if ok, _ := r.Allow("device-2"); !ok {
		t.Error("other devices should have their own window")
	}

	// Window reset restores the budget.
	now = base.Add(time.Minute + time.Second)
	if ok, _ := r.Allow("device-1"); !ok {
		t.Error("request should be allowed after the window resets")
	}
}
