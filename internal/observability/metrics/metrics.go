package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppointmentMetrics exposes counters/histograms for negotiation and
// settlement flows.
type AppointmentMetrics struct {
	transitionsTotal *prometheus.CounterVec
	conflictsTotal   prometheus.Counter
	intentsTotal     *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equicare",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Total negotiation transitions by outcome",
		}, []string{"transition", "status"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "equicare",
			Subsystem: "appointments",
			Name:      "version_conflicts_total",
			Help:      "Total optimistic-concurrency conflicts on appointment writes",
		}),
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "equicare",
			Subsystem: "payments",
			Name:      "intents_total",
			Help:      "Total payment intent creations by route and outcome",
		}, []string{"route", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "equicare",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of settlement webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.conflictsTotal, m.intentsTotal, m.webhookLatency)
	return m
}

func (m *AppointmentMetrics) ObserveTransition(transition, status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(transition, status).Inc()
}

func (m *AppointmentMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *AppointmentMetrics) ObserveIntent(route, status string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(route, status).Inc()
}

func (m *AppointmentMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
