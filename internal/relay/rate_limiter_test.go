package relay

import "testing"

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	rl := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("c1") {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if rl.Allow("c1") {
		t.Error("fourth event should be blocked")
	}
}

func TestRateLimiter_PerConnection(t *testing.T) {
	rl := NewRateLimiter(1)

	if !rl.Allow("a") {
		t.Error("first event for a should be allowed")
	}
	if !rl.Allow("b") {
		t.Error("b has its own window")
	}
	if rl.Allow("a") {
		t.Error("second event for a should be blocked")
	}
}

func TestRateLimiter_ForgetResetsWindow(t *testing.T) {
	rl := NewRateLimiter(1)

	if !rl.Allow("c1") {
		t.Fatal("first event should be allowed")
	}
	if rl.Allow("c1") {
		t.Fatal("second event should be blocked")
	}

	rl.Forget("c1")
	if !rl.Allow("c1") {
		t.Error("forgotten connection should start a fresh window")
	}
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	rl := NewRateLimiter(0)
	if rl.limit != DefaultEventsPerMinute {
		t.Errorf("expected default limit %d, got %d", DefaultEventsPerMinute, rl.limit)
	}
}

func TestRateLimiter_CleanupKeepsFreshWindows(t *testing.T) {
	rl := NewRateLimiter(10)
	rl.Allow("c1")
	rl.Cleanup()

	rl.mu.Lock()
	_, exists := rl.clients["c1"]
	rl.mu.Unlock()
	if !exists {
		t.Error("cleanup should not drop a fresh window")
	}
}
