// Package events carries negotiation and settlement domain events through a
// transactional outbox. The state machine records events after its mutation
// persists; delivery runs asynchronously and never blocks or rolls back an
// appointment write.
package events

import "time"

// Event kinds written by the negotiation machine and the settlement
// orchestrator.
const (
	KindAppointmentRequested = "appointment_requested.v1"
	KindAppointmentConfirmed = "appointment_confirmed.v1"
	KindAppointmentRejected  = "appointment_rejected.v1"
	KindAlternativeProposed  = "appointment_alternative_proposed.v1"
	KindAppointmentCancelled = "appointment_cancelled.v1"
	KindAppointmentCompleted = "appointment_completed.v1"
	KindAppointmentAmended   = "appointment_amended.v1"
	KindPaymentSucceeded     = "payment_succeeded.v1"
)

// AppointmentEventV1 is the payload for every negotiation transition event.
// RecipientID is the counterparty that should be notified.
type AppointmentEventV1 struct {
	AppointmentID  int64     `json:"appointment_id"`
	ClientID       int64     `json:"client_id"`
	ProfessionalID int64     `json:"professional_id"`
	RecipientID    int64     `json:"recipient_id"`
	Status         string    `json:"status"`
	Date           time.Time `json:"date"`
	PriceCents     *int64    `json:"price_cents,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// PaymentSucceededV1 is emitted when the payment processor reports a settled
// intent.
type PaymentSucceededV1 struct {
	AppointmentID int64     `json:"appointment_id"`
	RecipientID   int64     `json:"recipient_id"`
	IntentID      string    `json:"intent_id"`
	AmountCents   int64     `json:"amount_cents"`
	Method        string    `json:"method,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
