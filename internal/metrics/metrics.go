package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	instanceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "lifecycle",
			Name:      "starts_total",
			Help:      "Number of successful instance starts.",
		}, []string{"workspace"},
	)
	instanceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "lifecycle",
			Name:      "stops_total",
			Help:      "Number of successful instance stops (graceful or forced).",
		}, []string{"workspace"},
	)
	startErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "lifecycle",
			Name:      "start_errors_total",
			Help:      "Number of failed start attempts.",
		}, []string{"workspace"},
	)
	stopFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "lifecycle",
			Name:      "stop_failures_total",
			Help:      "Number of stops where graceful and forced termination both failed.",
		}, []string{"workspace"},
	)
	orphansKilled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "warden",
			Subsystem: "lifecycle",
			Name:      "orphans_killed_total",
			Help:      "Number of orphaned service processes killed by the scanner.",
		},
	)
	reconcileLocksRemoved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "reconcile",
			Name:      "locks_removed",
			Help:      "Start locks removed by the last reconcile pass.",
		},
	)
	reconcileRecordsRemoved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "reconcile",
			Name:      "records_removed",
			Help:      "Stale PID records removed by the last reconcile pass.",
		},
	)
	reconcileHungStopped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Subsystem: "reconcile",
			Name:      "hung_stopped",
			Help:      "Hung instances stopped by the last reconcile pass.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	collectors := []prometheus.Collector{
		instanceStarts, instanceStops, startErrors, stopFailures,
		orphansKilled, reconcileLocksRemoved, reconcileRecordsRemoved, reconcileHungStopped,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Default registers collectors on the default registry.
func Default() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an HTTP handler serving the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(workspace string)       { instanceStarts.WithLabelValues(workspace).Inc() }
func IncStop(workspace string)        { instanceStops.WithLabelValues(workspace).Inc() }
func IncStartError(workspace string)  { startErrors.WithLabelValues(workspace).Inc() }
func IncStopFailure(workspace string) { stopFailures.WithLabelValues(workspace).Inc() }
func AddOrphansKilled(n int)          { orphansKilled.Add(float64(n)) }

// SetReconcile records the outcome of a reconcile pass.
func SetReconcile(locks, records, hung int) {
	reconcileLocksRemoved.Set(float64(locks))
	reconcileRecordsRemoved.Set(float64(records))
	reconcileHungStopped.Set(float64(hung))
}
