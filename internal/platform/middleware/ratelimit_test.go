package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}

	e := echo.New()
	handler := RateLimit(cfg)(okHandler)

	// All requests within the burst size pass.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
	}

	e := echo.New()
	handler := RateLimit(cfg)(okHandler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	// The burst is spent; the next request is refused.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := handler(c)

	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	handler := RateLimit(cfg)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = handler(c)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := handler(c); err == nil {
		t.Fatal("expected error for rate-limited request")
	}

	retryAfter := rec.Header().Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be set")
	}
	retryVal, parseErr := strconv.Atoi(retryAfter)
	if parseErr != nil {
		t.Fatalf("Retry-After header is not a valid integer: %q", retryAfter)
	}
	if retryVal < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", retryVal)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", got)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	handler := RateLimit(cfg)(okHandler)

	userRequest := func(userID string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		withAuth(userID, []string{"physician"})(req)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		return handler(c)
	}

	if err := userRequest("dr-osei"); err != nil {
		t.Fatalf("dr-osei first request: expected no error, got %v", err)
	}
	if err := userRequest("dr-osei"); err == nil {
		t.Fatal("dr-osei second request: expected rate limit error")
	}

	// A different user has an untouched bucket.
	if err := userRequest("nurse-adeyemi"); err != nil {
		t.Fatalf("nurse-adeyemi first request: expected no error, got %v", err)
	}
}

func TestRateLimit_AnonymousKeyedByIP(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	handler := RateLimit(cfg)(okHandler)

	ipRequest := func(addr string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		return handler(c)
	}

	if err := ipRequest("10.0.0.1:40000"); err != nil {
		t.Fatalf("first ip, first request: expected no error, got %v", err)
	}
	if err := ipRequest("10.0.0.1:40001"); err == nil {
		t.Fatal("first ip, second request: expected rate limit error")
	}
	if err := ipRequest("10.0.0.2:40000"); err != nil {
		t.Fatalf("second ip: expected no error, got %v", err)
	}
}

func TestTokenBucket_Take(t *testing.T) {
	b := newTokenBucket(1, 1)

	allowed, remaining, _ := b.take()
	if !allowed {
		t.Fatal("expected first take to be allowed")
	}
	if remaining != 0 {
		t.Errorf("expected 0 remaining after spending the burst, got %d", remaining)
	}

	allowed, _, retryAfter := b.take()
	if allowed {
		t.Fatal("expected second take to be refused")
	}
	if retryAfter < 1 {
		t.Errorf("expected retryAfter >= 1, got %d", retryAfter)
	}
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	b := newTokenBucket(0, 1)
	b.take()

	allowed, _, retryAfter := b.take()
	if allowed {
		t.Fatal("expected take to be refused with an empty zero-rate bucket")
	}
	if retryAfter != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", retryAfter)
	}
}

func TestRateLimiterStore_ReusesBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	b1 := store.bucketFor("key1")
	if b1 == nil {
		t.Fatal("expected non-nil bucket")
	}
	if b2 := store.bucketFor("key1"); b1 != b2 {
		t.Error("expected same bucket instance for same key")
	}
	if b3 := store.bucketFor("key2"); b1 == b3 {
		t.Error("expected different bucket for different key")
	}
}

func TestRateLimiterStore_SweepsIdleBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	store.bucketFor("stale")
	store.mu.Lock()
	store.buckets["stale"].lastSeen = time.Now().Add(-2 * bucketIdleEviction)
	store.nextSweep = time.Now().Add(-time.Second)
	store.mu.Unlock()

	store.bucketFor("fresh")

	store.mu.Lock()
	_, staleKept := store.buckets["stale"]
	_, freshKept := store.buckets["fresh"]
	store.mu.Unlock()

	if staleKept {
		t.Error("expected stale bucket to be evicted by the sweep")
	}
	if !freshKept {
		t.Error("expected fresh bucket to survive the sweep")
	}
}
