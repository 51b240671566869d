package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTransitionCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAppointmentMetrics(reg)

	m.ObserveTransition("accept", "ok")
	m.ObserveTransition("accept", "ok")
	m.ObserveTransition("reject", "denied")

	expected := `
# HELP equicare_appointments_transitions_total Total negotiation transitions by outcome
# TYPE equicare_appointments_transitions_total counter
equicare_appointments_transitions_total{status="denied",transition="reject"} 1
equicare_appointments_transitions_total{status="ok",transition="accept"} 2
`
	if err := testutil.CollectAndCompare(m.transitionsTotal, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *AppointmentMetrics
	m.ObserveTransition("accept", "ok")
	m.ObserveConflict()
	m.ObserveIntent("direct", "ok")
	m.ObserveWebhookLatency("payment_intent.succeeded", 0.1)
}

func TestObserveIntentRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAppointmentMetrics(reg)

	m.ObserveIntent("marketplace", "ok")
	m.ObserveIntent("direct", "error")

	if got := testutil.ToFloat64(m.intentsTotal.WithLabelValues("marketplace", "ok")); got != 1 {
		t.Fatalf("expected marketplace ok = 1, got %f", got)
	}
	if got := testutil.ToFloat64(m.intentsTotal.WithLabelValues("direct", "error")); got != 1 {
		t.Fatalf("expected direct error = 1, got %f", got)
	}
}
