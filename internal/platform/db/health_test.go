package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func healthRequest(t *testing.T, pinger Pinger) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := HealthHandler(pinger, nil)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := healthRequest(t, &fakePinger{})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", body["status"])
	}
	if _, ok := body["latency_ms"]; !ok {
		t.Error("expected latency_ms in response")
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec, body := healthRequest(t, &fakePinger{err: errors.New("connection refused")})

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %v", body["status"])
	}
	if body["error"] != "connection refused" {
		t.Errorf("expected ping error in response, got %v", body["error"])
	}
}

func TestHealthHandler_NilPoolOmitsStats(t *testing.T) {
	_, body := healthRequest(t, &fakePinger{})

	if _, ok := body["pool"]; ok {
		t.Error("expected no pool stats when pool is nil")
	}
}
