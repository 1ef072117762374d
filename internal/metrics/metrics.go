package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agentctl"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	agentStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "starts_total",
			Help:      "Number of agent starts that survived the grace period.",
		}, []string{"agent"},
	)
	agentStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "start_failures_total",
			Help:      "Number of rejected or failed starts by reason.",
		}, []string{"agent", "reason"},
	)
	agentStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "stops_total",
			Help:      "Number of stops by mode (graceful or killed).",
		}, []string{"agent", "mode"},
	)
	stopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "stop_duration_seconds",
			Help:      "Time from the first termination signal until the process was gone.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"agent"},
	)
	staleRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "stale_records_total",
			Help:      "Number of pid records purged because they no longer named a live agent.",
		}, []string{"reason"},
	)
	agentRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "running",
			Help:      "1 when the agent has a live process, 0 otherwise.",
		}, []string{"agent"},
	)
	agentMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "resident_memory_bytes",
			Help:      "Resident set size of the agent process at the last status query.",
		}, []string{"agent"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{agentStarts, agentStartFailures, agentStops, stopDuration, staleRecords, agentRunning, agentMemory}
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

// Enabled reports whether Register has succeeded.
func Enabled() bool { return regOK.Load() }

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has been called.

func IncStart(agent string) {
	if regOK.Load() {
		agentStarts.WithLabelValues(agent).Inc()
	}
}

func IncStartFailure(agent, reason string) {
	if regOK.Load() {
		agentStartFailures.WithLabelValues(agent, reason).Inc()
	}
}

// IncStop records a completed stop; forced marks a SIGKILL escalation.
func IncStop(agent string, forced bool) {
	if regOK.Load() {
		mode := "graceful"
		if forced {
			mode = "killed"
		}
		agentStops.WithLabelValues(agent, mode).Inc()
	}
}

func ObserveStopDuration(agent string, seconds float64) {
	if regOK.Load() {
		stopDuration.WithLabelValues(agent).Observe(seconds)
	}
}

func IncStale(reason string) {
	if regOK.Load() {
		staleRecords.WithLabelValues(reason).Inc()
	}
}

func SetRunning(agent string, running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		agentRunning.WithLabelValues(agent).Set(v)
	}
}

func SetMemory(agent string, bytes uint64) {
	if regOK.Load() {
		agentMemory.WithLabelValues(agent).Set(float64(bytes))
	}
}
