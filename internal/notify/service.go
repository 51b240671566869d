package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/equicare/equicare-platform/internal/directory"
	"github.com/equicare/equicare-platform/internal/events"
	"github.com/equicare/equicare-platform/internal/money"
	"github.com/equicare/equicare-platform/pkg/logging"
)

// Service turns outbox entries into emails for the affected party. It is the
// DeliveryHandler behind the outbox deliverer: returning an error keeps the
// entry pending for a later retry, returning nil marks it delivered.
type Service struct {
	sender EmailSender
	users  directory.Users
	logger *logging.Logger
}

// NewService creates the notification service.
func NewService(sender EmailSender, users directory.Users, logger *logging.Logger) *Service {
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sender: sender, users: users, logger: logger}
}

// Handle delivers one outbox entry.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	switch entry.Type {
	case events.KindAppointmentRequested,
		events.KindAppointmentConfirmed,
		events.KindAppointmentRejected,
		events.KindAlternativeProposed,
		events.KindAppointmentCancelled,
		events.KindAppointmentCompleted,
		events.KindAppointmentAmended:
		var evt events.AppointmentEventV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			// Undecodable payloads never become decodable; drop them.
			s.logger.Error("unparseable appointment event", "error", err, "event_id", entry.ID, "type", entry.Type)
			return nil
		}
		return s.sendAppointmentMail(ctx, entry.Type, evt)
	case events.KindPaymentSucceeded:
		var evt events.PaymentSucceededV1
		if err := json.Unmarshal(entry.Payload, &evt); err != nil {
			s.logger.Error("unparseable payment event", "error", err, "event_id", entry.ID)
			return nil
		}
		return s.sendPaymentMail(ctx, evt)
	default:
		s.logger.Warn("unknown event kind, skipping", "type", entry.Type, "event_id", entry.ID)
		return nil
	}
}

func (s *Service) sendAppointmentMail(ctx context.Context, kind string, evt events.AppointmentEventV1) error {
	to, err := s.recipientEmail(ctx, evt.RecipientID)
	if err != nil {
		return err
	}
	if to == "" {
		return nil
	}

	subject, intro := appointmentCopy(kind)
	body := fmt.Sprintf("%s\n\nDate: %s\n", intro, evt.Date.Format("Monday, 2 January 2006 at 15:04"))
	if evt.PriceCents != nil {
		body += fmt.Sprintf("Price: %s EUR\n", money.ToDisplay(*evt.PriceCents))
	}
	if evt.Notes != "" {
		body += "\n" + evt.Notes + "\n"
	}
	body += "\nLog in to EquiCare to respond.\n"

	if err := s.sender.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("notify: appointment mail: %w", err)
	}
	return nil
}

func (s *Service) sendPaymentMail(ctx context.Context, evt events.PaymentSucceededV1) error {
	to, err := s.recipientEmail(ctx, evt.RecipientID)
	if err != nil {
		return err
	}
	if to == "" {
		return nil
	}

	body := fmt.Sprintf(
		"A payment of %s EUR for your appointment was received on %s.\n\nLog in to EquiCare for details.\n",
		money.ToDisplay(evt.AmountCents),
		evt.OccurredAt.Format(time.RFC1123),
	)
	if err := s.sender.Send(ctx, EmailMessage{To: to, Subject: "Payment received", Body: body}); err != nil {
		return fmt.Errorf("notify: payment mail: %w", err)
	}
	return nil
}

// recipientEmail resolves the address. A user without an email address is
// skipped for good; a lookup failure is retried.
func (s *Service) recipientEmail(ctx context.Context, userID int64) (string, error) {
	if s.users == nil {
		return "", nil
	}
	email, err := s.users.Email(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("notify: recipient lookup: %w", err)
	}
	if email == "" {
		s.logger.Warn("notification recipient has no address", "user_id", userID)
	}
	return email, nil
}

func appointmentCopy(kind string) (subject, intro string) {
	switch kind {
	case events.KindAppointmentRequested:
		return "New appointment request", "You have received a new appointment request."
	case events.KindAppointmentConfirmed:
		return "Appointment confirmed", "Your appointment has been confirmed."
	case events.KindAppointmentRejected:
		return "Appointment declined", "Your appointment request was declined."
	case events.KindAlternativeProposed:
		return "New time proposed", "A new time has been proposed for your appointment."
	case events.KindAppointmentCancelled:
		return "Appointment cancelled", "Your appointment has been cancelled."
	case events.KindAppointmentCompleted:
		return "Appointment completed", "Your appointment has been completed."
	case events.KindAppointmentAmended:
		return "Appointment updated", "Your appointment details have changed."
	default:
		return "Appointment update", "Your appointment has been updated."
	}
}

var _ events.DeliveryHandler = (*Service)(nil)
