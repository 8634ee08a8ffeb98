package metric

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "routemesh"

// Dispatch outcome label values.
const (
	OutcomeHandled          = "handled"
	OutcomeNotFound         = "not_found"
	OutcomeServerError      = "server_error"
	OutcomeBadRequest       = "bad_request"
	OutcomeAuthRejected     = "auth_rejected"
	OutcomeRedirectOverflow = "redirect_overflow"
	OutcomeDropped          = "dropped"
)

// Registry holds all engine metrics.
type Registry struct {
	// Connection metrics
	ConnectionsActive   Gauge
	ConnectionsAccepted Counter

	// Intake metrics, labelled by failure class
	ReadFailures CounterVec

	// Dispatch metrics, labelled by outcome
	RequestsTotal   CounterVec
	RequestDuration HistogramVec
	RedirectHops    Histogram

	registry *prometheus.Registry
}

// Counter is a cumulative metric that only increases.
type Counter interface {
	Inc()
	Add(float64)
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

// Histogram samples observations and counts them in buckets.
type Histogram interface {
	Observe(float64)
}

// HistogramVec is a Histogram with labels.
type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

type counterVec struct{ v *prometheus.CounterVec }

func (c counterVec) WithLabelValues(lvs ...string) Counter { return c.v.WithLabelValues(lvs...) }

type histogramVec struct{ v *prometheus.HistogramVec }

func (h histogramVec) WithLabelValues(lvs ...string) Histogram { return h.v.WithLabelValues(lvs...) }

// NewRegistry creates a registry backed by a fresh Prometheus registry
// that also carries the Go runtime and process collectors.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()

	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Number of open client connections.",
	})
	accepted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_accepted_total",
		Help:      "Total accepted client connections.",
	})
	readFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_failures_total",
		Help:      "Message reads that ended without a request, by failure class.",
	}, []string{"class"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Dispatched requests by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Time from dispatch start until the handler or responder returned.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	hops := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "redirect_hops",
		Help:      "Redirect hops followed per request.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
	})

	reg.MustRegister(
		active, accepted, readFailures, requests, duration, hops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		ConnectionsActive:   active,
		ConnectionsAccepted: accepted,
		ReadFailures:        counterVec{readFailures},
		RequestsTotal:       counterVec{requests},
		RequestDuration:     histogramVec{duration},
		RedirectHops:        hops,
		registry:            reg,
	}
}

// Register adds an extra collector, e.g. a Collector or the storage
// layer's gauges. It is a no-op on a Nop registry.
func (r *Registry) Register(c prometheus.Collector) error {
	if r.registry == nil {
		return nil
	}
	return r.registry.Register(c)
}

// Registerer exposes the underlying registerer, nil for Nop.
func (r *Registry) Registerer() prometheus.Registerer {
	if r.registry == nil {
		return nil
	}
	return r.registry
}

// WriteText writes all metrics in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	if r.registry == nil {
		return nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("metric: gather: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metric: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ContentType is the media type produced by WriteText.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Nop returns a registry whose metrics discard every update.
func Nop() *Registry {
	return &Registry{
		ConnectionsActive:   nopMetric{},
		ConnectionsAccepted: nopMetric{},
		ReadFailures:        nopCounterVec{},
		RequestsTotal:       nopCounterVec{},
		RequestDuration:     nopHistogramVec{},
		RedirectHops:        nopMetric{},
	}
}

type nopMetric struct{}

func (nopMetric) Inc()            {}
func (nopMetric) Dec()            {}
func (nopMetric) Add(float64)     {}
func (nopMetric) Sub(float64)     {}
func (nopMetric) Set(float64)     {}
func (nopMetric) Observe(float64) {}

type nopCounterVec struct{}

func (nopCounterVec) WithLabelValues(...string) Counter { return nopMetric{} }

type nopHistogramVec struct{}

func (nopHistogramVec) WithLabelValues(...string) Histogram { return nopMetric{} }
