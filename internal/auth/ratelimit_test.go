package auth

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	t.Run("first N requests within burst are allowed", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 10, Burst: 5})

		for i := 0; i < 5; i++ {
			if !rl.Allow("client1") {
				t.Errorf("Allow() = false for request %d, want true (within burst)", i+1)
			}
		}
	})

	t.Run("returns false after burst is exhausted", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 10, Burst: 3})
		now := time.Unix(1_700_000_000, 0)
		rl.now = func() time.Time { return now }

		for i := 0; i < 3; i++ {
			rl.Allow("client1")
		}

		if rl.Allow("client1") {
			t.Error("Allow() = true after burst exhausted, want false")
		}
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 10, Burst: 1})
		now := time.Unix(1_700_000_000, 0)
		rl.now = func() time.Time { return now }

		if !rl.Allow("client1") {
			t.Fatal("first request rejected")
		}
		if rl.Allow("client1") {
			t.Fatal("second request allowed before refill")
		}
		now = now.Add(200 * time.Millisecond)
		if !rl.Allow("client1") {
			t.Error("Allow() = false after refill, want true")
		}
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
		now := time.Unix(1_700_000_000, 0)
		rl.now = func() time.Time { return now }

		rl.Allow("a")
		if !rl.Allow("b") {
			t.Error("Allow(b) = false, want true (separate bucket)")
		}
	})
}

func TestNewRateLimiterInvalidConfig(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	if rl.config != DefaultRateLimitConfig() {
		t.Errorf("config = %+v, want defaults", rl.config)
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	if cfg.RequestsPerSecond != 10 {
		t.Errorf("RequestsPerSecond = %v, want 10", cfg.RequestsPerSecond)
	}
	if cfg.Burst != 20 {
		t.Errorf("Burst = %d, want 20", cfg.Burst)
	}
}

func TestParseRateLimit(t *testing.T) {
	base := DefaultRateLimitConfig()
	tests := []struct {
		in   string
		want RateLimitConfig
	}{
		{in: "50:100", want: RateLimitConfig{RequestsPerSecond: 50, Burst: 100}},
		{in: "2.5", want: RateLimitConfig{RequestsPerSecond: 2.5, Burst: 20}},
		{in: "", want: base},
		{in: "x:y", want: base},
		{in: "-1:-1", want: base},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseRateLimit(tt.in, base); got != tt.want {
				t.Errorf("ParseRateLimit(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAuthFailure(t *testing.T) {
	t.Run("returns false before reaching threshold", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())

		for i := 0; i < 9; i++ {
			if rl.AuthFailure("192.168.1.1") {
				t.Errorf("AuthFailure() = true at attempt %d, want false (below threshold)", i+1)
			}
		}
	})

	t.Run("returns true (blocked) after 10 failures", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())

		var blocked bool
		for i := 0; i < 10; i++ {
			blocked = rl.AuthFailure("192.168.1.1")
		}

		if !blocked {
			t.Error("AuthFailure() = false after 10 failures, want true (blocked)")
		}
	})

	t.Run("window resets after a minute", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())
		now := time.Unix(1_700_000_000, 0)
		rl.now = func() time.Time { return now }

		for i := 0; i < 9; i++ {
			rl.AuthFailure("192.168.1.1")
		}
		now = now.Add(2 * time.Minute)
		if rl.AuthFailure("192.168.1.1") {
			t.Error("AuthFailure() = true after window reset, want false")
		}
	})
}

func TestIsAuthBlocked(t *testing.T) {
	t.Run("returns true when IP is blocked", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())

		for i := 0; i < 10; i++ {
			rl.AuthFailure("192.168.1.1")
		}

		if !rl.IsAuthBlocked("192.168.1.1") {
			t.Error("IsAuthBlocked() = false, want true (IP should be blocked)")
		}
	})

	t.Run("block expires", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())
		now := time.Unix(1_700_000_000, 0)
		rl.now = func() time.Time { return now }

		for i := 0; i < 10; i++ {
			rl.AuthFailure("192.168.1.1")
		}
		now = now.Add(authBlockDur + time.Second)
		if rl.IsAuthBlocked("192.168.1.1") {
			t.Error("IsAuthBlocked() = true after block expired, want false")
		}
	})

	t.Run("returns false for unknown IP", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())

		if rl.IsAuthBlocked("10.0.0.1") {
			t.Error("IsAuthBlocked() = true for unknown IP, want false")
		}
	})
}

func TestAuthSuccess(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())

	for i := 0; i < 5; i++ {
		rl.AuthFailure("192.168.1.1")
	}

	rl.AuthSuccess("192.168.1.1")

	// After clearing, 9 more failures should not trigger a block
	var blocked bool
	for i := 0; i < 9; i++ {
		blocked = rl.AuthFailure("192.168.1.1")
	}
	if blocked {
		t.Error("AuthFailure() = true after AuthSuccess() cleared tracking, want false")
	}
}

func TestAuthBlockRetryAfter(t *testing.T) {
	t.Run("returns positive value when blocked", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())

		for i := 0; i < 10; i++ {
			rl.AuthFailure("192.168.1.1")
		}

		if retryAfter := rl.AuthBlockRetryAfter("192.168.1.1"); retryAfter <= 0 {
			t.Errorf("AuthBlockRetryAfter() = %d, want > 0", retryAfter)
		}
	})

	t.Run("returns zero for non-blocked IP", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())

		if retryAfter := rl.AuthBlockRetryAfter("10.0.0.1"); retryAfter != 0 {
			t.Errorf("AuthBlockRetryAfter() = %d, want 0", retryAfter)
		}
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	t.Run("allows requests within rate limit", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 10, Burst: 5})

		handler := rl.Middleware(ClientIPKeyFunc)(okHandler())

		req := httptest.NewRequest(http.MethodPost, "/v1/calculate", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("returns 429 when rate limit exceeded", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2})

		handler := rl.Middleware(ClientIPKeyFunc)(okHandler())

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/calculate?i=%d", i), nil)
			req.RemoteAddr = "192.168.1.1:12345"
			handler.ServeHTTP(httptest.NewRecorder(), req)
		}

		req := httptest.NewRequest(http.MethodPost, "/v1/calculate", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
		}
		if got := rec.Header().Get("Retry-After"); got != "2" {
			t.Errorf("Retry-After = %q, want %q", got, "2")
		}
	})

	t.Run("empty key bypasses the limiter", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.1, Burst: 1})
		handler := rl.Middleware(func(*http.Request) string { return "" })(okHandler())

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("request %d: status = %d, want %d", i, rec.Code, http.StatusOK)
			}
		}
	})
}
