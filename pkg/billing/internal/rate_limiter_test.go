package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.allow("1.2.3.4") {
			t.Fatalf("Request %d should have been allowed", i+1)
		}
	}
	if limiter.allow("1.2.3.4") {
		t.Error("Fourth request should have been rejected")
	}

	// Other IPs are unaffected
	if !limiter.allow("5.6.7.8") {
		t.Error("Different IP should have its own bucket")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	window := 50 * time.Millisecond
	limiter := NewRateLimiter(1, window)

	if !limiter.allow("1.2.3.4") {
		t.Fatal("First request should be allowed")
	}
	if limiter.allow("1.2.3.4") {
		t.Fatal("Second request should be rejected")
	}

	time.Sleep(window + 10*time.Millisecond)

	if !limiter.allow("1.2.3.4") {
		t.Error("Request after window reset should be allowed")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
}

func TestGetClientIP_ForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")

	if ip := GetClientIP(req); ip != "203.0.113.7" {
		t.Errorf("Expected first forwarded IP, got %q", ip)
	}

	req.Header.Del("X-Forwarded-For")
	if ip := GetClientIP(req); ip != "10.0.0.1:5555" {
		t.Errorf("Expected RemoteAddr fallback, got %q", ip)
	}
}

func TestRateLimiter_CleanupRemovesExpired(t *testing.T) {
	window := 20 * time.Millisecond
	limiter := NewRateLimiter(10, window)

	for i := 0; i < 50; i++ {
		limiter.allow("192.0.2." + string(rune('a'+i%26)))
	}
	if len(limiter.requests) == 0 {
		t.Fatal("Expected buckets after requests")
	}

	time.Sleep(window + 10*time.Millisecond)
	limiter.Cleanup()

	if len(limiter.requests) != 0 {
		t.Errorf("Expected all buckets expired, %d remain", len(limiter.requests))
	}
}
