package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/equicare/equicare-platform/internal/apperr"
	"github.com/equicare/equicare-platform/internal/directory"
	"github.com/equicare/equicare-platform/internal/events"
	"github.com/equicare/equicare-platform/internal/identity"
	"github.com/equicare/equicare-platform/internal/money"
	"github.com/equicare/equicare-platform/internal/observability/metrics"
	"github.com/equicare/equicare-platform/pkg/logging"
)

var appointmentsTracer = otel.Tracer("equicare.internal.appointments")

// Service drives the negotiation state machine. Every mutation validates
// fully, consults the guard, persists exactly once through the repository's
// optimistic check, and then records an outbox event. Notification side
// effects never fail a transition.
type Service struct {
	repo          Repository
	connections   directory.Connections
	horses        directory.Horses
	outbox        events.Sink
	metrics       *metrics.AppointmentMetrics
	logger        *logging.Logger
	commissionBps int64
}

// NewService constructs the negotiation service.
func NewService(repo Repository, connections directory.Connections, horses directory.Horses, outbox events.Sink, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:          repo,
		connections:   connections,
		horses:        horses,
		outbox:        outbox,
		logger:        logger,
		commissionBps: money.DefaultCommissionBasisPoints,
	}
}

// WithCommissionBasisPoints overrides the platform commission rate.
func (s *Service) WithCommissionBasisPoints(bps int64) *Service {
	if bps > 0 {
		s.commissionBps = bps
	}
	return s
}

// WithMetrics attaches prometheus instrumentation.
func (s *Service) WithMetrics(m *metrics.AppointmentMetrics) *Service {
	s.metrics = m
	return s
}

// Request creates a new appointment in the requested state. Either party may
// initiate; the counterparty id names the other side.
func (s *Service) Request(ctx context.Context, actor identity.Actor, req RequestAppointment) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.request")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, s.deny(TransitionRequest, err)
	}

	var clientID, professionalID int64
	switch actor.Role {
	case identity.RoleClient:
		clientID, professionalID = actor.UserID, req.CounterpartyID
	case identity.RoleProfessional:
		clientID, professionalID = req.CounterpartyID, actor.UserID
	default:
		return nil, s.deny(TransitionRequest, apperr.New(apperr.KindForbidden, "only clients and professionals may request appointments"))
	}
	span.SetAttributes(
		attribute.Int64("equicare.client_id", clientID),
		attribute.Int64("equicare.professional_id", professionalID),
	)

	if s.connections != nil {
		if _, err := s.connections.AcceptedConnection(ctx, clientID, professionalID); err != nil {
			if errors.Is(err, directory.ErrNoConnection) {
				return nil, s.deny(TransitionRequest, apperr.New(apperr.KindForbidden, "no accepted connection between client and professional"))
			}
			return nil, fmt.Errorf("appointments: connection check: %w", err)
		}
	}
	if s.horses != nil {
		for _, horseID := range req.HorseIDs {
			owner, err := s.horses.Owner(ctx, horseID)
			if err != nil {
				if errors.Is(err, directory.ErrHorseNotFound) {
					return nil, s.deny(TransitionRequest, apperr.Newf(apperr.KindValidation, "horse %d does not exist", horseID))
				}
				return nil, fmt.Errorf("appointments: ownership check: %w", err)
			}
			if owner != clientID {
				return nil, s.deny(TransitionRequest, apperr.Newf(apperr.KindForbidden, "horse %d is not owned by the client", horseID))
			}
		}
	}

	appt := &Appointment{
		ClientID:        clientID,
		ProfessionalID:  professionalID,
		HorseIDs:        append([]int64(nil), req.HorseIDs...),
		Date:            req.Date,
		DurationMinutes: req.DurationMinutes,
		Location:        req.Location,
		IsPeriodic:      req.IsPeriodic,
		Frequency:       req.Frequency,
		EndDate:         req.EndDate,
		PriceCents:      req.PriceCents,
		PaymentStatus:   PaymentPending,
		Status:          StatusRequested,
		CreatedBy:       actor.Role,
		Notes:           req.Notes,
	}
	if req.PriceCents != nil {
		appt.CommissionCents = money.Commission(*req.PriceCents, s.commissionBps)
	}

	created, err := s.repo.Create(ctx, appt)
	if err != nil {
		s.metrics.ObserveTransition(string(TransitionRequest), "error")
		return nil, err
	}
	s.metrics.ObserveTransition(string(TransitionRequest), "ok")
	s.logger.Info("appointment requested",
		"appointment_id", created.ID,
		"client_id", clientID,
		"professional_id", professionalID,
		"created_by", actor.Role,
	)
	s.emit(ctx, events.KindAppointmentRequested, created, s.counterparty(created, actor))
	return created, nil
}

// Accept confirms a request or counter-proposal. Professionals may supply
// price/duration overrides; the machine refuses to confirm unpriced work.
func (s *Service) Accept(ctx context.Context, actor identity.Actor, req AcceptAppointment) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.accept")
	defer span.End()
	span.SetAttributes(attribute.Int64("equicare.appointment_id", req.AppointmentID))

	if err := req.Validate(); err != nil {
		return nil, s.deny(TransitionAccept, err)
	}
	appt, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(actor, appt, TransitionAccept); err != nil {
		return nil, s.deny(TransitionAccept, err)
	}

	if req.PriceCents != nil || req.DurationMinutes != nil {
		if actor.Role != identity.RoleProfessional {
			return nil, s.deny(TransitionAccept, apperr.New(apperr.KindForbidden, "only the professional may set price and duration on accept"))
		}
		if req.PriceCents != nil {
			appt.PriceCents = req.PriceCents
		}
		if req.DurationMinutes != nil {
			appt.DurationMinutes = req.DurationMinutes
		}
	}
	if !appt.Priced() {
		return nil, s.deny(TransitionAccept, ErrIncompletePricing)
	}

	appt.Status = StatusConfirmed
	appt.CommissionCents = money.Commission(*appt.PriceCents, s.commissionBps)

	updated, err := s.persist(ctx, TransitionAccept, appt)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment confirmed",
		"appointment_id", updated.ID,
		"price_cents", *updated.PriceCents,
		"commission_cents", updated.CommissionCents,
	)
	s.emit(ctx, events.KindAppointmentConfirmed, updated, s.counterparty(updated, actor))
	return updated, nil
}

// Reject declines a request; the appointment becomes terminal.
func (s *Service) Reject(ctx context.Context, actor identity.Actor, req RejectAppointment) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reject")
	defer span.End()
	span.SetAttributes(attribute.Int64("equicare.appointment_id", req.AppointmentID))

	if err := req.Validate(); err != nil {
		return nil, s.deny(TransitionReject, err)
	}
	appt, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(actor, appt, TransitionReject); err != nil {
		return nil, s.deny(TransitionReject, err)
	}

	appt.Status = StatusRejected
	if req.Reason != "" {
		appt.Notes = appendNote(appt.Notes, "Rejected: "+req.Reason)
	}

	updated, err := s.persist(ctx, TransitionReject, appt)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment rejected", "appointment_id", updated.ID, "by", actor.Role)
	s.emit(ctx, events.KindAppointmentRejected, updated, s.counterparty(updated, actor))
	return updated, nil
}

// ProposeAlternative counter-offers with a sibling appointment. The source
// keeps its own status and gains the hasAlternative flag; both writes land in
// one repository transaction.
func (s *Service) ProposeAlternative(ctx context.Context, actor identity.Actor, req ProposeAlternative) (*Appointment, *Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.propose_alternative")
	defer span.End()
	span.SetAttributes(attribute.Int64("equicare.appointment_id", req.AppointmentID))

	if err := req.Validate(); err != nil {
		return nil, nil, s.deny(TransitionProposeAlternative, err)
	}
	source, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, nil, err
	}
	if err := CanTransition(actor, source, TransitionProposeAlternative); err != nil {
		return nil, nil, s.deny(TransitionProposeAlternative, err)
	}

	proposal := source.Clone()
	proposal.ID = 0
	proposal.Status = StatusAlternativeProposed
	proposal.CreatedBy = actor.Role
	originalID := source.ID
	proposal.OriginalAppointmentID = &originalID
	proposal.HasAlternative = false
	proposal.PaymentStatus = PaymentPending
	proposal.PaymentMethod = ""
	proposal.PaymentIntentID = ""
	proposal.InvoiceURL = ""
	proposal.ReminderSent = false
	proposal.ReportSent = false
	proposal.Date = req.Date
	if req.DurationMinutes != nil {
		proposal.DurationMinutes = req.DurationMinutes
	}
	if req.PriceCents != nil {
		proposal.PriceCents = req.PriceCents
	}
	if req.Notes != "" {
		proposal.Notes = req.Notes
	}
	if proposal.PriceCents != nil {
		proposal.CommissionCents = money.Commission(*proposal.PriceCents, s.commissionBps)
	} else {
		proposal.CommissionCents = 0
	}

	source.HasAlternative = true

	updatedSource, createdProposal, err := s.repo.CreateAlternative(ctx, source, proposal)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.ObserveConflict()
		}
		s.metrics.ObserveTransition(string(TransitionProposeAlternative), "error")
		return nil, nil, err
	}
	s.metrics.ObserveTransition(string(TransitionProposeAlternative), "ok")
	s.logger.Info("alternative proposed",
		"appointment_id", updatedSource.ID,
		"proposal_id", createdProposal.ID,
		"by", actor.Role,
	)
	s.emit(ctx, events.KindAlternativeProposed, createdProposal, s.counterparty(createdProposal, actor))
	return updatedSource, createdProposal, nil
}

// Cancel soft-retires the appointment from any non-terminal state; the
// cancellation reason is kept in the notes. Payment records stay untouched,
// refunds are an external concern.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, req CancelAppointment) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("equicare.appointment_id", req.AppointmentID))

	if err := req.Validate(); err != nil {
		return nil, s.deny(TransitionCancel, err)
	}
	appt, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(actor, appt, TransitionCancel); err != nil {
		return nil, s.deny(TransitionCancel, err)
	}

	appt.Status = StatusCancelled
	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("cancelled by %s", actor.Role)
	}
	appt.Notes = appendNote(appt.Notes, fmt.Sprintf("Cancelled %s: %s", time.Now().UTC().Format("2006-01-02"), reason))

	updated, err := s.persist(ctx, TransitionCancel, appt)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment cancelled", "appointment_id", updated.ID, "by", actor.Role)
	s.emit(ctx, events.KindAppointmentCancelled, updated, s.counterparty(updated, actor))
	return updated, nil
}

// Complete marks a confirmed appointment as carried out. A still-pending
// payment is demoted to unpaid to signal it is now collectable.
func (s *Service) Complete(ctx context.Context, actor identity.Actor, req CompleteAppointment) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.complete")
	defer span.End()
	span.SetAttributes(attribute.Int64("equicare.appointment_id", req.AppointmentID))

	if err := req.Validate(); err != nil {
		return nil, s.deny(TransitionComplete, err)
	}
	appt, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(actor, appt, TransitionComplete); err != nil {
		return nil, s.deny(TransitionComplete, err)
	}

	appt.Status = StatusCompleted
	if appt.PaymentStatus == PaymentPending {
		appt.PaymentStatus = PaymentUnpaid
	}
	if req.Report != "" {
		appt.Notes = appendNote(appt.Notes, "Report: "+req.Report)
		appt.ReportSent = true
	}

	updated, err := s.persist(ctx, TransitionComplete, appt)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment completed", "appointment_id", updated.ID, "payment_status", updated.PaymentStatus)
	s.emit(ctx, events.KindAppointmentCompleted, updated, updated.ClientID)
	return updated, nil
}

// Amend lets the professional adjust price, notes, date or duration on a
// confirmed appointment. Commission follows the price.
func (s *Service) Amend(ctx context.Context, actor identity.Actor, req AmendAppointment) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.amend")
	defer span.End()
	span.SetAttributes(attribute.Int64("equicare.appointment_id", req.AppointmentID))

	if err := req.Validate(); err != nil {
		return nil, s.deny(TransitionAmend, err)
	}
	appt, err := s.repo.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(actor, appt, TransitionAmend); err != nil {
		return nil, s.deny(TransitionAmend, err)
	}

	if req.PriceCents != nil {
		appt.PriceCents = req.PriceCents
		appt.CommissionCents = money.Commission(*req.PriceCents, s.commissionBps)
	}
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}
	if req.Date != nil {
		appt.Date = *req.Date
	}
	if req.DurationMinutes != nil {
		appt.DurationMinutes = req.DurationMinutes
	}

	updated, err := s.persist(ctx, TransitionAmend, appt)
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment amended", "appointment_id", updated.ID)
	s.emit(ctx, events.KindAppointmentAmended, updated, updated.ClientID)
	return updated, nil
}

// Get returns a single appointment if the actor may read it.
func (s *Service) Get(ctx context.Context, actor identity.Actor, id int64) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanRead(actor, appt) {
		return nil, ErrForbidden
	}
	return appt, nil
}

// ListByClient returns the client's appointments. Clients see only their own
// list; admins see anyone's.
func (s *Service) ListByClient(ctx context.Context, actor identity.Actor, clientID int64) ([]Appointment, error) {
	if actor.Role != identity.RoleAdmin && !(actor.Role == identity.RoleClient && actor.UserID == clientID) {
		return nil, ErrForbidden
	}
	return s.repo.ListByClient(ctx, clientID)
}

// ListByProfessional returns the professional's appointments.
func (s *Service) ListByProfessional(ctx context.Context, actor identity.Actor, professionalID int64) ([]Appointment, error) {
	if actor.Role != identity.RoleAdmin && !(actor.Role == identity.RoleProfessional && actor.UserID == professionalID) {
		return nil, ErrForbidden
	}
	return s.repo.ListByProfessional(ctx, professionalID)
}

// ListByHorse returns the horse's appointments. Only the owning client or an
// admin may list by horse.
func (s *Service) ListByHorse(ctx context.Context, actor identity.Actor, horseID int64) ([]Appointment, error) {
	if actor.Role != identity.RoleAdmin {
		if actor.Role != identity.RoleClient || s.horses == nil {
			return nil, ErrForbidden
		}
		owner, err := s.horses.Owner(ctx, horseID)
		if err != nil {
			if errors.Is(err, directory.ErrHorseNotFound) {
				return nil, apperr.Newf(apperr.KindNotFound, "horse %d not found", horseID)
			}
			return nil, fmt.Errorf("appointments: ownership check: %w", err)
		}
		if owner != actor.UserID {
			return nil, ErrForbidden
		}
	}
	return s.repo.ListByHorse(ctx, horseID)
}

// persist applies the CAS update and records metrics uniformly.
func (s *Service) persist(ctx context.Context, t Transition, appt *Appointment) (*Appointment, error) {
	updated, err := s.repo.Update(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.ObserveConflict()
		}
		s.metrics.ObserveTransition(string(t), "error")
		return nil, err
	}
	s.metrics.ObserveTransition(string(t), "ok")
	return updated, nil
}

func (s *Service) deny(t Transition, err error) error {
	s.metrics.ObserveTransition(string(t), "denied")
	return err
}

// emit records an outbox event; failures are logged and swallowed, the
// transition already happened.
func (s *Service) emit(ctx context.Context, kind string, appt *Appointment, recipientID int64) {
	if s.outbox == nil {
		return
	}
	evt := events.AppointmentEventV1{
		AppointmentID:  appt.ID,
		ClientID:       appt.ClientID,
		ProfessionalID: appt.ProfessionalID,
		RecipientID:    recipientID,
		Status:         string(appt.Status),
		Date:           appt.Date,
		PriceCents:     appt.PriceCents,
		Notes:          appt.Notes,
		OccurredAt:     time.Now().UTC(),
	}
	if _, err := s.outbox.Insert(ctx, appt.ID, kind, evt); err != nil {
		s.logger.Error("failed to enqueue notification event", "error", err, "appointment_id", appt.ID, "kind", kind)
	}
}

// counterparty picks who should be notified about the actor's transition.
func (s *Service) counterparty(appt *Appointment, actor identity.Actor) int64 {
	if actor.Role == identity.RoleClient {
		return appt.ProfessionalID
	}
	return appt.ClientID
}

func appendNote(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + "\n" + addition
}
