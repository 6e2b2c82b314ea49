package app

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nuetzliches/busgate/internal/sbus"
)

// runtimeMetrics tracks gateway counters for the /metrics endpoint and the
// healthz diagnostics block. Operation counters are keyed by the logical
// operation name, failures additionally by error kind.
type runtimeMetrics struct {
	tracingEnabled            atomic.Int64
	tracingInitFailuresTotal  atomic.Int64
	tracingExportErrorsTotal  atomic.Int64
	configReloadsTotal        atomic.Int64
	configReloadFailuresTotal atomic.Int64

	mu         sync.Mutex
	operations map[string]*operationCounters
}

type operationCounters struct {
	total  int64
	failed int64
	byKind map[string]int64
}

func newRuntimeMetrics() *runtimeMetrics {
	return &runtimeMetrics{
		operations: make(map[string]*operationCounters),
	}
}

func (m *runtimeMetrics) setTracingEnabled(on bool) {
	if on {
		m.tracingEnabled.Store(1)
	} else {
		m.tracingEnabled.Store(0)
	}
}

func (m *runtimeMetrics) incTracingInitFailures() { m.tracingInitFailuresTotal.Add(1) }
func (m *runtimeMetrics) incTracingExportErrors() { m.tracingExportErrorsTotal.Add(1) }
func (m *runtimeMetrics) incConfigReloads()       { m.configReloadsTotal.Add(1) }
func (m *runtimeMetrics) incConfigReloadFailures() {
	m.configReloadFailuresTotal.Add(1)
}

func (m *runtimeMetrics) observeOperation(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.operations[op]
	if !ok {
		c = &operationCounters{byKind: make(map[string]int64)}
		m.operations[op] = c
	}
	c.total++
	if err != nil {
		c.failed++
		c.byKind[string(sbus.KindOf(err))]++
	}
}

func (m *runtimeMetrics) diagnostics() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := make(map[string]any, len(m.operations))
	for op, c := range m.operations {
		ops[op] = map[string]any{
			"total":  c.total,
			"failed": c.failed,
		}
	}
	return map[string]any{
		"tracing_enabled": m.tracingEnabled.Load() == 1,
		"operations":      ops,
	}
}

// handler serves the counters in Prometheus text exposition format.
func (m *runtimeMetrics) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "busgate_tracing_enabled %d\n", m.tracingEnabled.Load())
		fmt.Fprintf(&b, "busgate_tracing_init_failures_total %d\n", m.tracingInitFailuresTotal.Load())
		fmt.Fprintf(&b, "busgate_tracing_export_errors_total %d\n", m.tracingExportErrorsTotal.Load())
		fmt.Fprintf(&b, "busgate_config_reloads_total %d\n", m.configReloadsTotal.Load())
		fmt.Fprintf(&b, "busgate_config_reload_failures_total %d\n", m.configReloadFailuresTotal.Load())

		m.mu.Lock()
		ops := make([]string, 0, len(m.operations))
		for op := range m.operations {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			c := m.operations[op]
			fmt.Fprintf(&b, "busgate_operations_total{op=%q} %d\n", op, c.total)
			kinds := make([]string, 0, len(c.byKind))
			for kind := range c.byKind {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				fmt.Fprintf(&b, "busgate_operation_failures_total{op=%q,kind=%q} %d\n", op, kind, c.byKind[kind])
			}
		}
		m.mu.Unlock()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(b.String()))
	})
}
