// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting blogctl runtime metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Internal state (source of truth for the JSON snapshot)
var (
	updates          int64
	updatesFailed    int64
	deploys          int64
	deploysFailed    int64
	recoveries       int64
	patchWindowSkips int64
	probesFailed     int64
	lastRun          int64
)

const counterInc int64 = 1

// Prometheus collectors
var (
	promUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blogctl_updates_total",
			Help: "Total successful update workflow runs",
		},
	)
	promUpdatesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blogctl_updates_failed_total",
			Help: "Total failed update workflow runs",
		},
	)
	promDeploys = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blogctl_deploys_total",
			Help: "Total successful deploy workflow runs",
		},
	)
	promDeploysFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blogctl_deploys_failed_total",
			Help: "Total failed deploy workflow runs",
		},
	)
	promRecoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blogctl_recoveries_total",
			Help: "Total service restarts performed by crash recovery",
		},
	)
	promPatchWindowSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blogctl_patch_window_skips_total",
			Help: "Total watch passes skipped due to patch window",
		},
	)
	promProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blogctl_remote_probes_total",
			Help: "Total upstream probe attempts",
		},
		[]string{"status"},
	)
	promWorkflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "blogctl_workflow_duration_seconds",
			Help: "Duration of workflow runs",
			Buckets: []float64{
				0.5,
				1,
				2,
				5,
				10,
				30,
				60,
				120,
				300,
				600,
			},
		},
		[]string{"workflow"},
	)
	promLastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blogctl_last_run_timestamp_seconds",
			Help: "Unix timestamp of last workflow run",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promUpdates,
		promUpdatesFailed,
		promDeploys,
		promDeploysFailed,
		promRecoveries,
		promPatchWindowSkips,
		promProbes,
		promWorkflowDuration,
		promLastRun,
	)
}

// IncUpdate increments the number of successful update runs.
func IncUpdate() {
	atomic.AddInt64(&updates, counterInc)
	promUpdates.Inc()
}

// IncUpdateFailed increments the counter for failed update runs.
func IncUpdateFailed() {
	atomic.AddInt64(&updatesFailed, counterInc)
	promUpdatesFailed.Inc()
}

// IncDeploy increments the number of successful deploy runs.
func IncDeploy() {
	atomic.AddInt64(&deploys, counterInc)
	promDeploys.Inc()
}

// IncDeployFailed increments the counter for failed deploy runs.
func IncDeployFailed() {
	atomic.AddInt64(&deploysFailed, counterInc)
	promDeploysFailed.Inc()
}

// IncRecovery increments the counter for crash-recovery restarts.
func IncRecovery() {
	atomic.AddInt64(&recoveries, counterInc)
	promRecoveries.Inc()
}

// IncPatchWindowSkip increments the counter for watch passes skipped due to
// patch window restrictions.
func IncPatchWindowSkip() {
	atomic.AddInt64(&patchWindowSkips, counterInc)
	promPatchWindowSkips.Inc()
}

// IncProbeSuccess increments the counter for successful upstream probes.
func IncProbeSuccess() {
	promProbes.WithLabelValues("success").Inc()
}

// IncProbeFailure increments the counter for failed upstream probes.
func IncProbeFailure() {
	atomic.AddInt64(&probesFailed, counterInc)
	promProbes.WithLabelValues("failure").Inc()
}

// ObserveWorkflowDuration records the duration (in seconds) of a workflow run.
func ObserveWorkflowDuration(workflow string, seconds float64) {
	promWorkflowDuration.WithLabelValues(workflow).Observe(seconds)
}

// SetLastRun stores the provided time as the last run timestamp and updates
// the corresponding Prometheus gauge.
func SetLastRun(t time.Time) {
	atomic.StoreInt64(&lastRun, t.Unix())
	promLastRun.Set(float64(t.Unix()))
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	Updates          int64  `json:"updates"`
	UpdatesFailed    int64  `json:"updates_failed"`
	Deploys          int64  `json:"deploys"`
	DeploysFailed    int64  `json:"deploys_failed"`
	Recoveries       int64  `json:"recoveries"`
	PatchWindowSkips int64  `json:"patch_window_skips"`
	ProbesFailed     int64  `json:"probes_failed"`
	LastRun          int64  `json:"last_run_timestamp"`
	LastRunHuman     string `json:"last_run_human"`
}

// GetSnapshot returns a StatsSnapshot with the current values of all
// internal counters and timestamps.
func GetSnapshot() StatsSnapshot {
	ts := atomic.LoadInt64(&lastRun)
	return StatsSnapshot{
		Updates:          atomic.LoadInt64(&updates),
		UpdatesFailed:    atomic.LoadInt64(&updatesFailed),
		Deploys:          atomic.LoadInt64(&deploys),
		DeploysFailed:    atomic.LoadInt64(&deploysFailed),
		Recoveries:       atomic.LoadInt64(&recoveries),
		PatchWindowSkips: atomic.LoadInt64(&patchWindowSkips),
		ProbesFailed:     atomic.LoadInt64(&probesFailed),
		LastRun:          ts,
		LastRunHuman:     time.Unix(ts, 0).Format(time.RFC3339),
	}
}

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler returns an HTTP handler that serves the current metrics as
// a JSON-encoded StatsSnapshot.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
