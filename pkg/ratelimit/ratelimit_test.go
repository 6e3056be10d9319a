package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	// With rate.NewLimiter(10, 2), the bucket starts with 2 tokens and each
	// Allow() consumes one.
	limiter := NewLimiter(10, 2)

	if !limiter.Allow("test-key") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("test-key") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("test-key") {
		t.Error("Third request should be rate limited")
	}

	// 10 req/s refills one token every 100ms
	time.Sleep(150 * time.Millisecond)

	if !limiter.Allow("test-key") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterIsolatesClients(t *testing.T) {
	limiter := NewLimiter(10, 1)

	if !limiter.Allow("client-a") {
		t.Error("client-a first request should be allowed")
	}
	if limiter.Allow("client-a") {
		t.Error("client-a second request should be rate limited")
	}
	if !limiter.Allow("client-b") {
		t.Error("client-b must not share client-a's bucket")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := NewLimiter(10, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := limiter.Middleware(func(r *http.Request) string {
		return "test-key"
	})
	wrappedHandler := middleware(handler)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("Request %d should succeed, got status %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	wrappedHandler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Third request should be rate limited, got status %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Rate limited response missing Retry-After header")
	}
}

func TestCleanupOldLimiters(t *testing.T) {
	limiter := NewLimiter(10, 2)

	limiter.Allow("stale-client")
	time.Sleep(30 * time.Millisecond)
	limiter.Allow("fresh-client")

	removed := limiter.CleanupOldLimiters(20 * time.Millisecond)
	if removed != 1 {
		t.Errorf("CleanupOldLimiters removed %d buckets, want 1", removed)
	}
	if got := limiter.ClientCount(); got != 1 {
		t.Errorf("tracked clients = %d, want 1", got)
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name          string
		remoteAddr    string
		xForwardedFor string
		expectedKey   string
	}{
		{
			name:        "Direct connection",
			remoteAddr:  "192.168.1.1:12345",
			expectedKey: "192.168.1.1:12345",
		},
		{
			name:          "Behind proxy",
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1",
			expectedKey:   "203.0.113.1",
		},
		{
			name:          "Proxy chain keeps first hop",
			remoteAddr:    "127.0.0.1:12345",
			xForwardedFor: "203.0.113.1, 10.0.0.2, 10.0.0.3",
			expectedKey:   "203.0.113.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}

			if key := IPKeyFunc(req); key != tt.expectedKey {
				t.Errorf("Expected key %s, got %s", tt.expectedKey, key)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	if key := UserKeyFunc(req); key != "192.168.1.1:12345" {
		t.Errorf("key without user header = %s, want remote addr", key)
	}

	req.Header.Set("X-User-ID", "user-42")
	if key := UserKeyFunc(req); key != "user:user-42" {
		t.Errorf("key with user header = %s, want user:user-42", key)
	}
}
