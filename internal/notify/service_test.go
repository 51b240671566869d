package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/equicare/equicare-platform/internal/directory"
	"github.com/equicare/equicare-platform/internal/events"
	"github.com/equicare/equicare-platform/pkg/logging"
)

type recordingSender struct {
	sent    []EmailMessage
	sendErr error
}

func (s *recordingSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *logging.Logger {
	return logging.NewWithWriter("error", discard{})
}

func appointmentEntry(t *testing.T, kind string, evt events.AppointmentEventV1) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.OutboxEntry{
		ID:            uuid.New(),
		AppointmentID: evt.AppointmentID,
		Type:          kind,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestHandleAppointmentRequested(t *testing.T) {
	sender := &recordingSender{}
	dir := directory.NewInMemoryDirectory()
	dir.AddEmail(20, "pro@example.com")
	svc := NewService(sender, dir, testLogger())

	price := int64(12050)
	entry := appointmentEntry(t, events.KindAppointmentRequested, events.AppointmentEventV1{
		AppointmentID:  1,
		ClientID:       10,
		ProfessionalID: 20,
		RecipientID:    20,
		Status:         "requested",
		Date:           time.Date(2026, 9, 14, 10, 0, 0, 0, time.UTC),
		PriceCents:     &price,
	})

	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "pro@example.com" {
		t.Fatalf("to = %s", msg.To)
	}
	if msg.Subject != "New appointment request" {
		t.Fatalf("subject = %s", msg.Subject)
	}
	if !strings.Contains(msg.Body, "120.50") {
		t.Fatalf("body missing display price: %s", msg.Body)
	}
}

func TestHandlePaymentSucceeded(t *testing.T) {
	sender := &recordingSender{}
	dir := directory.NewInMemoryDirectory()
	dir.AddEmail(20, "pro@example.com")
	svc := NewService(sender, dir, testLogger())

	payload, _ := json.Marshal(events.PaymentSucceededV1{
		AppointmentID: 1,
		RecipientID:   20,
		IntentID:      "pi_1",
		AmountCents:   5000,
		Method:        "card",
		OccurredAt:    time.Now().UTC(),
	})
	entry := events.OutboxEntry{ID: uuid.New(), Type: events.KindPaymentSucceeded, Payload: payload}

	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	if sender.sent[0].Subject != "Payment received" {
		t.Fatalf("subject = %s", sender.sent[0].Subject)
	}
	if !strings.Contains(sender.sent[0].Body, "50.00") {
		t.Fatalf("body missing amount: %s", sender.sent[0].Body)
	}
}

func TestHandleSkipsRecipientWithoutAddress(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, directory.NewInMemoryDirectory(), testLogger())

	entry := appointmentEntry(t, events.KindAppointmentConfirmed, events.AppointmentEventV1{
		AppointmentID: 1, RecipientID: 99, Date: time.Now(),
	})
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(sender.sent))
	}
}

func TestHandleSendFailureIsRetryable(t *testing.T) {
	sender := &recordingSender{sendErr: errors.New("smtp down")}
	dir := directory.NewInMemoryDirectory()
	dir.AddEmail(20, "pro@example.com")
	svc := NewService(sender, dir, testLogger())

	entry := appointmentEntry(t, events.KindAppointmentCancelled, events.AppointmentEventV1{
		AppointmentID: 1, RecipientID: 20, Date: time.Now(),
	})
	if err := svc.Handle(context.Background(), entry); err == nil {
		t.Fatal("send failure must propagate so the outbox retries")
	}
}

func TestHandleDropsUndecodablePayload(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, directory.NewInMemoryDirectory(), testLogger())

	entry := events.OutboxEntry{
		ID:      uuid.New(),
		Type:    events.KindAppointmentRequested,
		Payload: json.RawMessage(`{broken`),
	}
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle = %v, want nil so the poison entry is retired", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(sender.sent))
	}
}

func TestHandleUnknownKindIsSkipped(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, directory.NewInMemoryDirectory(), testLogger())

	entry := events.OutboxEntry{ID: uuid.New(), Type: "mystery.v9", Payload: json.RawMessage(`{}`)}
	if err := svc.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(sender.sent))
	}
}
