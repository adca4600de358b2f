package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procwatch",
			Subsystem: "watchdog",
			Name:      "cycles_total",
			Help:      "Number of completed check cycles.",
		},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "procwatch",
			Subsystem: "watchdog",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time from cycle start to cycle completion, settle delays included.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procwatch",
			Subsystem: "program",
			Name:      "launches_total",
			Help:      "Number of successful program launches.",
		}, []string{"name"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procwatch",
			Subsystem: "program",
			Name:      "launch_failures_total",
			Help:      "Number of failed program launches.",
		}, []string{"name"},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procwatch",
			Subsystem: "probe",
			Name:      "checks_total",
			Help:      "Number of liveness probes by result.",
		}, []string{"result"},
	)
	probeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "procwatch",
			Subsystem: "probe",
			Name:      "errors_total",
			Help:      "Number of process table enumeration failures.",
		},
	)
	loopRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procwatch",
			Subsystem: "watchdog",
			Name:      "running",
			Help:      "1 while the supervision loop is running.",
		},
	)
	loopPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "procwatch",
			Subsystem: "watchdog",
			Name:      "phase",
			Help:      "Current phase of the supervision loop (1 = active phase, 0 = inactive).",
		}, []string{"phase"},
	)
	phaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procwatch",
			Subsystem: "watchdog",
			Name:      "phase_transitions_total",
			Help:      "Number of transitions between loop phases.",
		}, []string{"from", "to"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{cycles, cycleDuration, launches, launchFailures, probes, probeErrors, loopRunning, loopPhase, phaseTransitions}
	for _, c := range cs {
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

// RegisterDefault registers with prometheus.DefaultRegisterer.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Mux returns a ServeMux exposing Handler at /metrics.
func Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return mux
}

// Helpers below no-op if Register hasn't been called.

func IncCycle(d time.Duration) {
	if regOK.Load() {
		cycles.Inc()
		cycleDuration.Observe(d.Seconds())
	}
}

func IncLaunch(name string) {
	if regOK.Load() {
		launches.WithLabelValues(name).Inc()
	}
}

func IncLaunchFailure(name string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(name).Inc()
	}
}

func ObserveProbe(running bool) {
	if regOK.Load() {
		result := "not_running"
		if running {
			result = "running"
		}
		probes.WithLabelValues(result).Inc()
	}
}

func IncProbeError() {
	if regOK.Load() {
		probeErrors.Inc()
	}
}

func SetRunning(running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		loopRunning.Set(v)
	}
}

// RecordPhase moves the phase gauge from one phase to another.
func RecordPhase(from, to string) {
	if !regOK.Load() || from == to {
		return
	}
	if from != "" {
		loopPhase.WithLabelValues(from).Set(0)
		phaseTransitions.WithLabelValues(from, to).Inc()
	}
	loopPhase.WithLabelValues(to).Set(1)
}
