// Package metrics exposes Prometheus collectors for batch dispatches and the
// retry engine. A nil *Collector is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded per request and generation.
const (
	OutcomeSuccess  = "success"
	OutcomeRetry    = "retry"
	OutcomeTerminal = "terminal"
)

// Collector groups the SDK collectors.
type Collector struct {
	// Requests counts classified responses per HTTP method and outcome
	Requests *prometheus.CounterVec
	// Generations counts dispatch rounds, labelled by generation number
	Generations *prometheus.CounterVec
	// Retries counts requests queued for another generation
	Retries prometheus.Counter
	// GlobalCrashes counts unattributable batch-wide transport failures
	GlobalCrashes prometheus.Counter
	// DispatchLatency tracks wall time of a single dispatch round
	DispatchLatency *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
// Collectors already registered with reg by an earlier call are reused, so
// several databases can report into one registry.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Collector{
		Requests: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtdb_requests_total",
				Help: "Total number of classified responses",
			},
			[]string{"method", "outcome"},
		)),
		Generations: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtdb_generations_total",
				Help: "Total number of dispatch generations",
			},
			[]string{"generation"},
		)),
		Retries: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rtdb_retries_total",
				Help: "Total number of requests queued for retry",
			},
		)),
		GlobalCrashes: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rtdb_global_crashes_total",
				Help: "Total number of batch-wide transport failures",
			},
		)),
		DispatchLatency: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rtdb_dispatch_latency_seconds",
				Help:    "Dispatch round latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		)),
	}
}

// register adds c to reg, or returns the equivalent collector reg already holds.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRequest records the outcome of one classified response.
func (c *Collector) ObserveRequest(method, outcome string) {
	if c == nil {
		return
	}
	c.Requests.WithLabelValues(method, outcome).Inc()
}

// ObserveGeneration records a dispatch round and how many requests it retries.
func (c *Collector) ObserveGeneration(generation string, retries int) {
	if c == nil {
		return
	}
	c.Generations.WithLabelValues(generation).Inc()
	if retries > 0 {
		c.Retries.Add(float64(retries))
	}
}

// ObserveDispatch records the latency of a dispatch round ("single" or "batch").
func (c *Collector) ObserveDispatch(mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.DispatchLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveGlobalCrash records a batch-wide failure.
func (c *Collector) ObserveGlobalCrash() {
	if c == nil {
		return
	}
	c.GlobalCrashes.Inc()
}
