package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/equicare/equicare-platform/internal/apperr"
	"github.com/equicare/equicare-platform/internal/appointments"
	"github.com/equicare/equicare-platform/internal/events"
	"github.com/equicare/equicare-platform/internal/observability/metrics"
	"github.com/equicare/equicare-platform/pkg/logging"
)

// WebhookHandler receives Stripe settlement events and feeds them into the
// orchestrator. Delivery is at-least-once; the processed-event store makes
// replays no-ops.
type WebhookHandler struct {
	webhookSecret string
	orchestrator  *Orchestrator
	processed     events.ProcessedTracker
	metrics       *metrics.AppointmentMetrics
	logger        *logging.Logger
	now           func() time.Time
}

// NewWebhookHandler creates the settlement webhook handler.
func NewWebhookHandler(webhookSecret string, orchestrator *Orchestrator, processed events.ProcessedTracker, logger *logging.Logger) *WebhookHandler {
	if orchestrator == nil {
		panic("payments: orchestrator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		webhookSecret: webhookSecret,
		orchestrator:  orchestrator,
		processed:     processed,
		logger:        logger,
		now:           time.Now,
	}
}

// WithMetrics attaches prometheus instrumentation.
func (h *WebhookHandler) WithMetrics(m *metrics.AppointmentMetrics) *WebhookHandler {
	h.metrics = m
	return h
}

// Handle processes an incoming Stripe webhook request.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	started := h.now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature"), h.now()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}
	defer func() {
		h.metrics.ObserveWebhookLatency(evt.Type, h.now().Sub(started).Seconds())
	}()

	if evt.Type != "payment_intent.succeeded" && evt.Type != "payment_intent.payment_failed" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.processed != nil {
		done, err := h.processed.AlreadyProcessed(r.Context(), "stripe", evt.ID)
		if err != nil {
			h.logger.Error("processed lookup failed", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if done {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	intent := evt.Data.Object
	if intent.ID == "" {
		http.Error(w, "missing intent id", http.StatusBadRequest)
		return
	}

	status := IntentStatusSucceeded
	if evt.Type == "payment_intent.payment_failed" {
		status = IntentStatusFailed
	}
	params := ReconcileParams{
		IntentID:    intent.ID,
		Status:      status,
		AmountCents: intent.AmountReceived,
		Method:      intentMethod(intent),
	}

	_, err = h.orchestrator.Reconcile(r.Context(), params)
	switch {
	case err == nil:
	case errors.Is(err, appointments.ErrNotFound):
		// An intent we never issued; acknowledge so Stripe stops retrying.
		h.logger.Warn("webhook for unknown intent", "intent_id", intent.ID, "event_id", evt.ID)
	case apperr.KindOf(err) == apperr.KindUpstreamPayment:
		// A failed settlement leaves the appointment untouched; the event
		// itself is fully handled.
		h.logger.Info("settlement failure recorded", "intent_id", intent.ID, "event_id", evt.ID)
	default:
		h.logger.Error("reconcile failed", "error", err, "intent_id", intent.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(r.Context(), "stripe", evt.ID); err != nil {
			h.logger.Error("failed to record processed event", "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// stripeWebhookEvent is the Stripe event envelope.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeIntentEventObject `json:"object"`
	} `json:"data"`
}

// stripeIntentEventObject is the payment_intent object inside the event.
type stripeIntentEventObject struct {
	ID                 string   `json:"id"`
	Status             string   `json:"status"`
	Amount             int64    `json:"amount"`
	AmountReceived     int64    `json:"amount_received"`
	Currency           string   `json:"currency"`
	PaymentMethodTypes []string `json:"payment_method_types"`
}

func intentMethod(obj stripeIntentEventObject) string {
	if len(obj.PaymentMethodTypes) > 0 {
		return obj.PaymentMethodTypes[0]
	}
	return ""
}

// verifyStripeSignature checks the Stripe-Signature header: HMAC-SHA256 over
// "<timestamp>.<payload>" presented as t=<ts>,v1=<sig>[,v1=...], with a five
// minute timestamp tolerance. An empty secret bypasses verification for
// development.
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if abs64(now.Unix()-ts) > 300 {
		return false
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
