package http

import "testing"

func TestRateLimiterPerUserBudget(t *testing.T) {
	limiter := newRateLimiter(2)

	for i := 0; i < 2; i++ {
		if !limiter.allow("u1") {
			t.Fatalf("send %d should be allowed", i)
		}
	}
	if limiter.allow("u1") {
		t.Fatalf("send above budget should be rejected")
	}

	// Budgets are per user.
	if !limiter.allow("u2") {
		t.Fatalf("other user should have an untouched budget")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !limiter.allow("u1") {
			t.Fatalf("disabled limiter must always allow")
		}
	}
}
