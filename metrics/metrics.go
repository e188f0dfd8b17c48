package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the pipeline metrics on a private prometheus registry.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg                *prometheus.Registry
	Searches           *prometheus.CounterVec
	ProviderFetches    *prometheus.CounterVec
	ProviderLatencySec *prometheus.HistogramVec
	HistoryWrites      *prometheus.CounterVec
	NarrativeFallbacks prometheus.Counter
	CacheLookups       *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	searches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "priceagent_searches_total",
		Help: "Searches by outcome.",
	}, []string{"outcome"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "priceagent_provider_fetches_total",
		Help: "Provider fetches by platform and outcome.",
	}, []string{"platform", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "priceagent_provider_latency_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "priceagent_history_writes_total",
		Help: "History store writes by outcome.",
	}, []string{"outcome"})
	fallbacks := prometheus.NewCounter(prometheus.CounterOpts{Name: "priceagent_narrative_fallbacks_total"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "priceagent_cache_lookups_total",
	}, []string{"platform", "result"})

	r.MustRegister(searches, fetches, latency, writes, fallbacks, cache)
	return &Registry{
		reg:                r,
		Searches:           searches,
		ProviderFetches:    fetches,
		ProviderLatencySec: latency,
		HistoryWrites:      writes,
		NarrativeFallbacks: fallbacks,
		CacheLookups:       cache,
	}
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveSearch(outcome string) {
	if r == nil {
		return
	}
	r.Searches.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveFetch(platform, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.ProviderFetches.WithLabelValues(platform, outcome).Inc()
	r.ProviderLatencySec.WithLabelValues(platform).Observe(took.Seconds())
}

func (r *Registry) ObserveHistoryWrite(ok bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	r.HistoryWrites.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveNarrativeFallback() {
	if r == nil {
		return
	}
	r.NarrativeFallbacks.Inc()
}

func (r *Registry) ObserveCache(platform string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(platform, result).Inc()
}
