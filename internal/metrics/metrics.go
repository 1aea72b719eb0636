// Package metrics bundles the Prometheus collectors of the routing engine.
// Every recording method is safe to call on a nil *Collector.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the registered routing collectors
type Collector struct {
	gatherer prometheus.Gatherer

	RouteRequests      *prometheus.CounterVec
	RouteDurations     *prometheus.HistogramVec
	PassOutcomes       *prometheus.CounterVec
	DirectionsCalls    *prometheus.CounterVec
	InferenceDurations prometheus.Histogram
	InferenceRows      prometheus.Counter
}

// New registers the collectors against reg, defaulting to the global
// Prometheus registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_route_requests_total",
		Help: "Route optimization calls, labeled by mode and outcome.",
	}, []string{"mode", "outcome"}))
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lifeline_route_request_duration_seconds",
		Help:    "Route optimization latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"mode"}))
	if err != nil {
		return nil, err
	}

	passes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_route_pass_outcomes_total",
		Help: "Per-pass results of the multi-pass controller.",
	}, []string{"pass", "result"}))
	if err != nil {
		return nil, err
	}

	calls, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_directions_calls_total",
		Help: "Directions provider calls, labeled by diversification strategy and result.",
	}, []string{"strategy", "result"}))
	if err != nil {
		return nil, err
	}

	inference, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifeline_risk_inference_duration_seconds",
		Help:    "Risk-cost model inference latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}))
	if err != nil {
		return nil, err
	}

	rows, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_risk_inference_rows_total",
		Help: "Feature rows scored by the risk-cost model.",
	}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		RouteRequests:      requests,
		RouteDurations:     durations,
		PassOutcomes:       passes,
		DirectionsCalls:    calls,
		InferenceDurations: inference,
		InferenceRows:      rows,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRoute records one optimization call
func (c *Collector) ObserveRoute(mode, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.RouteRequests.WithLabelValues(mode, outcome).Inc()
	c.RouteDurations.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObservePass records the result of one controller pass
func (c *Collector) ObservePass(pass, result string) {
	if c == nil {
		return
	}
	c.PassOutcomes.WithLabelValues(pass, result).Inc()
}

// ObserveDirections records one provider call
func (c *Collector) ObserveDirections(strategy, result string) {
	if c == nil {
		return
	}
	c.DirectionsCalls.WithLabelValues(strategy, result).Inc()
}

// ObserveInference records one model batch
func (c *Collector) ObserveInference(rows int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.InferenceRows.Add(float64(rows))
	c.InferenceDurations.Observe(elapsed.Seconds())
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
