// Package observability — metrics.go
//
// Prometheus metrics for the brimd supervisor process itself: worker
// lifecycle, restarts, bind failures. This is deliberately separate from
// the stats surface in internal/stats, which is the launched system's own
// counters (request_count, status_Nxx_count, ...) read back through the
// `status` verb — ambient process health and domain stats are different
// concerns with different audiences (an operator's Prometheus scraper vs.
// an application owner's `brimd status`).
//
// Endpoint: GET /metrics on a loopback address (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
//
// Metric naming convention: brimd_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for brimd's supervisor.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Supervisor ───────────────────────────────────────────────────────────

	// WorkersRunning is the current live worker-process count, by sub-instance.
	WorkersRunning *prometheus.GaugeVec

	// WorkerRestartsTotal counts worker respawns, by sub-instance and reason
	// (exit or crash).
	WorkerRestartsTotal *prometheus.CounterVec

	// WorkerCrashesTotal counts worker exits with a non-zero status or signal.
	WorkerCrashesTotal *prometheus.CounterVec

	// ─── Listeners ────────────────────────────────────────────────────────────

	// BindFailuresTotal counts binds that still failed after every retry,
	// by sub-instance.
	BindFailuresTotal *prometheus.CounterVec

	// ─── Daemons ──────────────────────────────────────────────────────────────

	// DaemonRestartsTotal counts daemon process respawns, by daemon name.
	DaemonRestartsTotal *prometheus.CounterVec

	// ─── Control plane ────────────────────────────────────────────────────────

	// ReloadsTotal counts reload requests (SIGHUP or the reload verb),
	// incremented once the restart signals have been sent.
	ReloadsTotal prometheus.Counter

	// SupervisorUptimeSeconds is the number of seconds since the parent started.
	SupervisorUptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all brimd supervisor metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		WorkersRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "brimd",
			Subsystem: "supervisor",
			Name:      "workers_running",
			Help:      "Current live worker-process count, by sub-instance.",
		}, []string{"instance"}),

		WorkerRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brimd",
			Subsystem: "supervisor",
			Name:      "worker_restarts_total",
			Help:      "Total worker respawns, by sub-instance and reason.",
		}, []string{"instance", "reason"}),

		WorkerCrashesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brimd",
			Subsystem: "supervisor",
			Name:      "worker_crashes_total",
			Help:      "Total worker exits with a non-zero status or signal, by sub-instance.",
		}, []string{"instance"}),

		BindFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brimd",
			Subsystem: "listener",
			Name:      "bind_failures_total",
			Help:      "Total binds that failed after all retries, by sub-instance.",
		}, []string{"instance"}),

		DaemonRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brimd",
			Subsystem: "daemon",
			Name:      "restarts_total",
			Help:      "Total daemon process respawns, by daemon name.",
		}, []string{"daemon"}),

		ReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brimd",
			Subsystem: "supervisor",
			Name:      "reloads_total",
			Help:      "Total reload requests.",
		}),

		SupervisorUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "brimd",
			Subsystem: "supervisor",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the supervisor started.",
		}),
	}

	reg.MustRegister(
		m.WorkersRunning,
		m.WorkerRestartsTotal,
		m.WorkerCrashesTotal,
		m.BindFailuresTotal,
		m.DaemonRestartsTotal,
		m.ReloadsTotal,
		m.SupervisorUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on addr. Blocks
// until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SupervisorUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
