package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	handler := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2}).Middleware(okHandler())
	if code := doRequest(handler, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request status %d", code)
	}
	if code := doRequest(handler, "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("second request status %d", code)
	}
	if code := doRequest(handler, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("burst overflow status %d, want 429", code)
	}
	// Another client has its own bucket.
	if code := doRequest(handler, "10.0.0.2"); code != http.StatusOK {
		t.Fatalf("second client status %d", code)
	}
}

func TestRateLimiterZeroBudgetDisabled(t *testing.T) {
	handler := NewRateLimiter(RateLimit{}).Middleware(okHandler())
	for i := 0; i < 10; i++ {
		if code := doRequest(handler, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d status %d with limiting disabled", i, code)
		}
	}
}

func TestClientIDSources(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	if got := clientID(req); got != "192.0.2.7" {
		t.Fatalf("remote addr client id %q", got)
	}
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	if got := clientID(req); got != "198.51.100.4" {
		t.Fatalf("forwarded client id %q", got)
	}
	req.Header.Set("X-Real-IP", "203.0.113.9")
	if got := clientID(req); got != "203.0.113.9" {
		t.Fatalf("real ip client id %q", got)
	}
}
