package handler

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Run("Requests within limit pass", func(t *testing.T) {
		rl := NewRateLimiter(3, 60)
		for i := 0; i < 3; i++ {
			if !rl.Allow("client-a") {
				t.Fatalf("request %d should be allowed", i+1)
			}
		}
		if rl.Allow("client-a") {
			t.Error("request over the limit should be denied")
		}
	})

	t.Run("Callers are limited independently", func(t *testing.T) {
		rl := NewRateLimiter(1, 60)
		if !rl.Allow("client-a") {
			t.Fatal("first caller should be allowed")
		}
		if !rl.Allow("client-b") {
			t.Error("a different caller should have its own window")
		}
		if rl.Allow("client-a") {
			t.Error("first caller should be over its limit")
		}
	})

	t.Run("Window expiry resets the count", func(t *testing.T) {
		rl := NewRateLimiter(1, 60)
		rl.window = 20 * time.Millisecond

		if !rl.Allow("client-a") {
			t.Fatal("first request should be allowed")
		}
		if rl.Allow("client-a") {
			t.Fatal("second request in the same window should be denied")
		}

		time.Sleep(30 * time.Millisecond)
		if !rl.Allow("client-a") {
			t.Error("request after window expiry should be allowed")
		}
	})
}
