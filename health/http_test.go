package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	LivenessHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	manager := newTestManager(t)
	checker := NewBreakerChecker(manager)
	handler := ReadinessHandler(checker)

	// Healthy: no circuits at all.
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("healthy: got %d %q, want 200 OK", rec.Code, rec.Body.String())
	}

	// Degraded circuits still report ready.
	manager.ForceHalfOpen("orders")
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "DEGRADED" {
		t.Errorf("degraded: got %d %q, want 200 DEGRADED", rec.Code, rec.Body.String())
	}

	// An open circuit flips readiness off.
	manager.ForceOpen("payments")
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "UNHEALTHY" {
		t.Errorf("unhealthy: got %d %q, want 503 UNHEALTHY", rec.Code, rec.Body.String())
	}
}

func TestCircuitsHandler(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	if err := manager.Execute(ctx, "orders", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	manager.ForceOpen("payments")

	rec := httptest.NewRecorder()
	CircuitsHandler(manager)(rec, httptest.NewRequest(http.MethodGet, "/circuits", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp MetricsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}

	if len(resp.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(resp.Services))
	}

	orders := resp.Services["orders"]
	if orders.State != "closed" {
		t.Errorf("orders state = %q, want closed", orders.State)
	}
	if orders.TotalCalls != 1 || orders.SuccessfulCalls != 1 {
		t.Errorf("orders calls = %d/%d, want 1/1", orders.TotalCalls, orders.SuccessfulCalls)
	}

	payments := resp.Services["payments"]
	if payments.State != "forced-open" {
		t.Errorf("payments state = %q, want forced-open", payments.State)
	}
}
