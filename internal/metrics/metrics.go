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

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service starts (spawn or adoption).",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of service stops (including no-op stops of stopped services).",
		}, []string{"name"},
	)
	serviceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Number of completed service restarts.",
		}, []string{"name"},
	)
	lifecycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "service",
			Name:      "lifecycle_errors_total",
			Help:      "Number of failed lifecycle operations.",
		}, []string{"name", "op"},
	)
	currentStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "steward",
			Subsystem: "service",
			Name:      "current_status",
			Help:      "Current persisted status per service (1 = active status, 0 = inactive).",
		}, []string{"name", "status"},
	)

	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Number of health checks by resulting classification.",
		}, []string{"name", "status"},
	)
	healthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "steward",
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Observed health check latency (probe plus handshake).",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)

	reconcilePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Number of completed reconciler passes.",
		},
	)
	reconcileCorrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "reconcile",
			Name:      "corrections_total",
			Help:      "Number of drift corrections by kind (stale_running, orphaned_port).",
		}, []string{"name", "action"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "event",
			Name:      "published_total",
			Help:      "Number of events published to the bus by event type.",
		}, []string{"type"},
	)
	eventHandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "event",
			Name:      "handler_errors_total",
			Help:      "Number of handler errors and panics contained by the bus.",
		}, []string{"handler"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceStops, serviceRestarts, lifecycleErrors, currentStatus,
		healthChecks, healthCheckDuration,
		reconcilePasses, reconcileCorrections,
		eventsPublished, eventHandlerErrors,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name).Inc()
	}
}

func IncRestart(name string) {
	if regOK.Load() {
		serviceRestarts.WithLabelValues(name).Inc()
	}
}

func IncLifecycleError(name, op string) {
	if regOK.Load() {
		lifecycleErrors.WithLabelValues(name, op).Inc()
	}
}

func SetCurrentStatus(name, status string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStatus.WithLabelValues(name, status).Set(value)
	}
}

func ObserveHealthCheck(name, status string, seconds float64) {
	if regOK.Load() {
		healthChecks.WithLabelValues(name, status).Inc()
		healthCheckDuration.WithLabelValues(name).Observe(seconds)
	}
}

func IncReconcilePass() {
	if regOK.Load() {
		reconcilePasses.Inc()
	}
}

func IncReconcileCorrection(name, action string) {
	if regOK.Load() {
		reconcileCorrections.WithLabelValues(name, action).Inc()
	}
}

func IncEventPublished(eventType string) {
	if regOK.Load() {
		eventsPublished.WithLabelValues(eventType).Inc()
	}
}

func IncHandlerError(handler string) {
	if regOK.Load() {
		eventHandlerErrors.WithLabelValues(handler).Inc()
	}
}
