package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "draqua"

// Metrics holds the service collectors on a private registry. A nil
// *Metrics is valid and records nothing, which keeps tests free of
// registry setup.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SalesCommitted   prometheus.Counter
	SaleRejections   *prometheus.CounterVec
	RevenueCommitted prometheus.Counter
	StockAdjustments *prometheus.CounterVec

	PersistenceWrites *prometheus.CounterVec
	RemindersActive   *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		SalesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_committed_total",
			Help:      "Sales appended to the ledger.",
		}),
		SaleRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_rejections_total",
			Help:      "Sale commits aborted, by reason.",
		}, []string{"reason"}),
		RevenueCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_committed_total",
			Help:      "Sum of committed sale totals since start.",
		}),
		StockAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_adjustments_total",
			Help:      "Manual stock adjustments, by direction.",
		}, []string{"direction"}),
		PersistenceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_writes_total",
			Help:      "Document writes, by document and result.",
		}, []string{"document", "result"}),
		RemindersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminders_active",
			Help:      "Reminders produced by the last scheduler run, by kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SalesCommitted,
		m.SaleRejections,
		m.RevenueCommitted,
		m.StockAdjustments,
		m.PersistenceWrites,
		m.RemindersActive,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) SaleCommitted(total float64) {
	if m == nil {
		return
	}
	m.SalesCommitted.Inc()
	m.RevenueCommitted.Add(total)
}

func (m *Metrics) SaleRejected(reason string) {
	if m == nil {
		return
	}
	m.SaleRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) StockAdjusted(direction string) {
	if m == nil {
		return
	}
	m.StockAdjustments.WithLabelValues(direction).Inc()
}

func (m *Metrics) DocumentWritten(document string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PersistenceWrites.WithLabelValues(document, result).Inc()
}

func (m *Metrics) SetReminders(counts map[string]int) {
	if m == nil {
		return
	}
	m.RemindersActive.Reset()
	for kind, n := range counts {
		m.RemindersActive.WithLabelValues(kind).Set(float64(n))
	}
}
