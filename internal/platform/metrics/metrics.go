// Package metrics exposes the Prometheus collectors recorded by the storefront.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Collectors groups every storefront metric behind one registry.
type Collectors struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CheckoutSessionsTotal *prometheus.CounterVec
	CheckoutLatency       prometheus.Histogram

	CustomerResolutionsTotal *prometheus.CounterVec

	StockFetchesTotal  *prometheus.CounterVec
	StockFetchDuration prometheus.Histogram
}

// New registers collectors on a fresh registry, including Go runtime and process metrics.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collectors{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CheckoutSessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout attempts by outcome",
		}, []string{"outcome"}),
		CheckoutLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_session_latency_seconds",
			Help:      "Time spent building a checkout session",
			Buckets:   prometheus.DefBuckets,
		}),
		CustomerResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customer_resolutions_total",
			Help:      "Customer resolutions by path taken",
		}, []string{"path"}),
		StockFetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_fetches_total",
			Help:      "Stock level fetches by result",
		}, []string{"result"}),
		StockFetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stock_fetch_duration_seconds",
			Help:      "Latency of stock level fetches",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Registry returns the underlying registry for tests and custom exporters.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// CheckoutOutcome records a checkout attempt and its latency.
func (c *Collectors) CheckoutOutcome(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.CheckoutSessionsTotal.WithLabelValues(outcome).Inc()
	c.CheckoutLatency.Observe(elapsed.Seconds())
}

// CustomerResolution records which path resolved a customer.
func (c *Collectors) CustomerResolution(path string) {
	if c == nil {
		return
	}
	c.CustomerResolutionsTotal.WithLabelValues(path).Inc()
}

// StockFetch records a stock lookup.
func (c *Collectors) StockFetch(err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.StockFetchesTotal.WithLabelValues(result).Inc()
	c.StockFetchDuration.Observe(elapsed.Seconds())
}

// Middleware records request counts and latency keyed by the chi route pattern.
func (c *Collectors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
