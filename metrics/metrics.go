// Package metrics keeps per-tool invocation statistics. Written only by the
// gateway after each completed or failed invocation; read-only for everyone
// else and never a source of control flow.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recent latency samples retained per tool for the summary.
const latencyWindow = 256

// ToolStats is a read-only snapshot of one tool's counters.
type ToolStats struct {
	Invocations    uint64            `json:"invocations"`
	Successes      uint64            `json:"successes"`
	FailuresByKind map[string]uint64 `json:"failures_by_kind,omitempty"`
	MeanLatencyMs  float64           `json:"mean_latency_ms"`
	P95LatencyMs   float64           `json:"p95_latency_ms"`
}

type toolStats struct {
	invocations uint64
	successes   uint64
	failures    map[string]uint64
	latencies   []time.Duration // ring buffer of recent samples
	next        int
	filled      bool
}

// Collector aggregates per-tool counters and mirrors them into Prometheus.
type Collector struct {
	mu      sync.Mutex
	perTool map[string]*toolStats

	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewCollector creates a Collector. When reg is non-nil the Prometheus
// collectors are registered with it; pass nil for a metrics-free collector
// (tests).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		perTool: make(map[string]*toolStats),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chemgate_tool_invocations_total",
			Help: "Tool invocations by outcome.",
		}, []string{"tool", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chemgate_tool_duration_seconds",
			Help:    "Tool invocation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	if reg != nil {
		reg.MustRegister(c.invocations, c.duration)
	}
	return c
}

// Record notes one finished invocation. errCode is empty for success,
// otherwise the stable error code of the final outcome.
func (c *Collector) Record(tool string, elapsed time.Duration, errCode string) {
	outcome := "ok"
	if errCode != "" {
		outcome = errCode
	}
	c.invocations.WithLabelValues(tool, outcome).Inc()
	c.duration.WithLabelValues(tool).Observe(elapsed.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.perTool[tool]
	if !ok {
		ts = &toolStats{
			failures:  make(map[string]uint64),
			latencies: make([]time.Duration, latencyWindow),
		}
		c.perTool[tool] = ts
	}

	ts.invocations++
	if errCode == "" {
		ts.successes++
	} else {
		ts.failures[errCode]++
	}

	ts.latencies[ts.next] = elapsed
	ts.next++
	if ts.next == latencyWindow {
		ts.next = 0
		ts.filled = true
	}
}

// Snapshot returns the stats for one tool.
func (c *Collector) Snapshot(tool string) (ToolStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts, ok := c.perTool[tool]
	if !ok {
		return ToolStats{}, false
	}
	return snapshotLocked(ts), true
}

// All returns snapshots for every tool seen so far.
func (c *Collector) All() map[string]ToolStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]ToolStats, len(c.perTool))
	for tool, ts := range c.perTool {
		out[tool] = snapshotLocked(ts)
	}
	return out
}

func snapshotLocked(ts *toolStats) ToolStats {
	n := ts.next
	if ts.filled {
		n = latencyWindow
	}

	snap := ToolStats{
		Invocations:    ts.invocations,
		Successes:      ts.successes,
		FailuresByKind: make(map[string]uint64, len(ts.failures)),
	}
	for k, v := range ts.failures {
		snap.FailuresByKind[k] = v
	}

	if n == 0 {
		return snap
	}

	window := make([]time.Duration, n)
	copy(window, ts.latencies[:n])
	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })

	var total time.Duration
	for _, d := range window {
		total += d
	}
	snap.MeanLatencyMs = float64(total.Microseconds()) / float64(n) / 1000
	idx := (n * 95) / 100
	if idx >= n {
		idx = n - 1
	}
	snap.P95LatencyMs = float64(window[idx].Microseconds()) / 1000
	return snap
}
