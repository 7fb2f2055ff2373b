// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "giftlist"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	authzDecisions  *prometheus.CounterVec
	groupsCreated   *prometheus.CounterVec
	groupsDeleted   prometheus.Counter
	messagesDeleted prometheus.Counter
	cascadeSize     prometheus.Histogram
	itemsCreated    *prometheus.CounterVec
	messagesSent    prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// New creates a private registry with the Go and process collectors plus ours.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Authorization decisions by outcome and reason.",
		}, []string{"permission", "outcome", "reason"}),
		groupsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_created_total",
			Help:      "Groups created by variant.",
		}, []string{"variant"}),
		groupsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_deleted_total",
			Help:      "Groups removed, cascaded children included.",
		}),
		messagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages removed by group deletion.",
		}),
		cascadeSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_groups",
			Help:      "Number of groups removed per delete.",
			Buckets:   []float64{1, 2, 3, 5, 10, 25},
		}),
		itemsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_created_total",
			Help:      "List items created by kind.",
		}, []string{"kind"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "User chat messages stored.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.authzDecisions, m.groupsCreated, m.groupsDeleted, m.messagesDeleted,
		m.cascadeSize, m.itemsCreated, m.messagesSent, m.httpRequests, m.httpLatency,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AuthzDecision counts one guard decision. reason is empty when allowed.
func (m *Metrics) AuthzDecision(permission string, allowed bool, reason string) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.authzDecisions.WithLabelValues(permission, outcome, reason).Inc()
}

func (m *Metrics) GroupCreated(variant string) {
	if m == nil {
		return
	}
	m.groupsCreated.WithLabelValues(variant).Inc()
}

// Cascade records the outcome of a delete.
func (m *Metrics) Cascade(groups int, messages int64) {
	if m == nil {
		return
	}
	m.groupsDeleted.Add(float64(groups))
	m.messagesDeleted.Add(float64(messages))
	m.cascadeSize.Observe(float64(groups))
}

func (m *Metrics) ItemCreated(kind string) {
	if m == nil {
		return
	}
	m.itemsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Status(http.StatusNotFound) }
	}
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
