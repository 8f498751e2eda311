package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestAllowWindow(t *testing.T) {
	c := &clock{t: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 2}, c.now)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request in the window should be refused")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own budget")
	}

	c.t = c.t.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("a new window should reset the budget")
	}
	if rl.Rejected() != 1 {
		t.Fatalf("rejected = %d", rl.Rejected())
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	c := &clock{t: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 5}, c.now)
	rl.Allow("a")
	c.t = c.t.Add(5 * time.Minute)
	rl.Allow("b")

	c.t = c.t.Add(6 * time.Minute)
	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 1 {
		t.Fatalf("active = %d, want 1", rl.ActiveClients())
	}
}

func TestMiddlewareLimitsOnlyMutations(t *testing.T) {
	c := &clock{t: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 1}, c.now)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodPost, http.StatusNoContent},
		{http.MethodPost, http.StatusTooManyRequests},
		{http.MethodGet, http.StatusNoContent},
		{http.MethodDelete, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/goals", nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.method, rec.Code, tt.want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(DefaultConfig())
	rl.Stop()
	rl.Stop()
}
