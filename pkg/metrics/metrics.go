// Package metrics exposes keeper activity as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

const namespace = "nextprice_keeper"

type Metrics struct {
	OrdersReceived prometheus.Counter
	OrdersRemoved  *prometheus.CounterVec // by reason
	Executions     *prometheus.CounterVec // by result
	QueryFailures  prometheus.Counter
	RegistrySize   prometheus.Gauge
	LastBlock      prometheus.Gauge
	PassDuration   prometheus.Histogram

	registry *prometheus.Registry
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		OrdersReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_received_total", Help: "Next-price orders added to the registry",
		}),
		OrdersRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_removed_total", Help: "Orders removed from the registry",
		}, []string{"reason"}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "execution_attempts_total", Help: "Execution attempts by outcome",
		}, []string{"result"}),
		QueryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "upstream_query_failures_total", Help: "Failed base asset or round lookups",
		}),
		RegistrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "registry_orders", Help: "Orders currently tracked",
		}),
		LastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_block", Help: "Block number of the last completed pass",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pass_duration_seconds", Help: "Wall time of one block pass",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.OrdersReceived, m.OrdersRemoved, m.Executions, m.QueryFailures,
		m.RegistrySize, m.LastBlock, m.PassDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveUpdate(u keeper.OrderUpdate) {
	switch u.Status {
	case "received":
		m.OrdersReceived.Inc()
	case "removed":
		m.OrdersRemoved.WithLabelValues(string(u.Reason)).Inc()
	}
}

func (m *Metrics) ObserveExecution(exec keeper.Execution) {
	m.Executions.WithLabelValues(exec.Result.String()).Inc()
}

// ObservePass records a finished pass; registrySize is the order count after the pass.
func (m *Metrics) ObservePass(stats keeper.PassStats, registrySize int) {
	m.QueryFailures.Add(float64(stats.QueryFailures))
	m.RegistrySize.Set(float64(registrySize))
	m.LastBlock.Set(float64(stats.Block))
	m.PassDuration.Observe(stats.Duration.Seconds())
}
