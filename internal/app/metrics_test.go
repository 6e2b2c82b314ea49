package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nuetzliches/busgate/internal/sbus"
)

func TestMetricsHandlerOutput(t *testing.T) {
	m := newRuntimeMetrics()
	m.setTracingEnabled(true)
	m.observeOperation("peek", nil)
	m.observeOperation("peek", nil)
	m.observeOperation("peek", sbus.Errorf(sbus.KindNotFound, "missing"))
	m.observeOperation("send", sbus.Errorf(sbus.KindValidation, "too large"))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"busgate_tracing_enabled 1",
		`busgate_operations_total{op="peek"} 3`,
		`busgate_operation_failures_total{op="peek",kind="not_found"} 1`,
		`busgate_operations_total{op="send"} 1`,
		`busgate_operation_failures_total{op="send",kind="validation"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestMetricsHandlerMethodGuard(t *testing.T) {
	m := newRuntimeMetrics()
	req := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestMetricsDiagnostics(t *testing.T) {
	m := newRuntimeMetrics()
	m.observeOperation("queue_list", nil)

	diag := m.diagnostics()
	if diag["tracing_enabled"] != false {
		t.Fatalf("expected tracing_enabled=false, got %v", diag["tracing_enabled"])
	}
	ops, ok := diag["operations"].(map[string]any)
	if !ok {
		t.Fatalf("operations missing: %v", diag)
	}
	if _, ok := ops["queue_list"]; !ok {
		t.Fatalf("queue_list counter missing: %v", ops)
	}
}
