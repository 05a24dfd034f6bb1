// Package metrics records per-connector call outcomes and search results
// on a private Prometheus registry.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mangafind"

// MaxSourceLabels caps distinct source label values. Sources seen after the
// cap is reached are recorded as OtherSource.
const MaxSourceLabels = 64

const OtherSource = "other"

// Recorder implements the search observer on top of Prometheus collectors.
type Recorder struct {
	reg           *prometheus.Registry
	sourceCalls   *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	searches      *prometheus.CounterVec
	results       prometheus.Histogram

	mu      sync.Mutex
	sources map[string]struct{}
}

// New creates a Recorder with its own registry, including Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		reg:     prometheus.NewRegistry(),
		sources: make(map[string]struct{}),
		sourceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_queries_total",
			Help:      "Per-connector search calls by outcome.",
		}, []string{"source", "outcome"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_query_duration_seconds",
			Help:      "Latency of per-connector search calls.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"source"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Aggregated searches by scope mode and outcome.",
		}, []string{"mode", "outcome"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of merged items returned per search.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	r.reg.MustRegister(
		r.sourceCalls,
		r.sourceLatency,
		r.searches,
		r.results,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveSource records one connector call.
func (r *Recorder) ObserveSource(source, outcome string, d time.Duration) {
	source = r.sourceLabel(source)
	r.sourceCalls.WithLabelValues(source, outcome).Inc()
	r.sourceLatency.WithLabelValues(source).Observe(d.Seconds())
}

func (r *Recorder) sourceLabel(source string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[source]; ok {
		return source
	}
	if len(r.sources) >= MaxSourceLabels {
		return OtherSource
	}
	r.sources[source] = struct{}{}
	return source
}

// ObserveSearch records one finished search.
func (r *Recorder) ObserveSearch(mode, outcome string, items int) {
	r.searches.WithLabelValues(mode, outcome).Inc()
	if outcome == "ok" {
		r.results.Observe(float64(items))
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
