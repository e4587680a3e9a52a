package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewRateLimiter(ctx, 0.001, 3).Middleware(okHandler())

	for i := range 3 {
		if code := hit(h, "203.0.113.2:1234"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, code)
		}
	}
	if code := hit(h, "203.0.113.2:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", code)
	}
	if code := hit(h, "203.0.113.3:1234"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}
}

func TestRateLimiter_NilContext(t *testing.T) {
	rl := NewRateLimiter(nil, 1, 0) //nolint:staticcheck // SA1012: nil disables the sweep
	if rl.burst != 1 {
		t.Errorf("burst = %d, want 1", rl.burst)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.5:1234", "", "", "203.0.113.5"},
		{"xff from private proxy", "127.0.0.1:1234", "203.0.113.10, 10.0.0.1", "", "10.0.0.1"},
		{"xff from public peer ignored", "203.0.113.5:1234", "198.51.100.1", "", "203.0.113.5"},
		{"x-real-ip from private proxy", "192.168.1.1:1234", "", "203.0.113.20", "203.0.113.20"},
		{"no port", "203.0.113.7", "", "", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-Ip", tt.xri)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
