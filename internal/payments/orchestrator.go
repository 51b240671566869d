package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/equicare/equicare-platform/internal/apperr"
	"github.com/equicare/equicare-platform/internal/appointments"
	"github.com/equicare/equicare-platform/internal/events"
	"github.com/equicare/equicare-platform/internal/identity"
	"github.com/equicare/equicare-platform/internal/observability/metrics"
	"github.com/equicare/equicare-platform/pkg/logging"
)

var orchestratorTracer = otel.Tracer("equicare.internal.payments")

// DefaultMarketplaceFeeCents is the flat application fee retained by the
// platform on marketplace-routed payments. It supersedes the percentage
// commission on that rail; the commission stays a bookkeeping figure.
const DefaultMarketplaceFeeCents int64 = 99

// IntentResult is returned to the paying client.
type IntentResult struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Route        string `json:"route"`
	AmountCents  int64  `json:"amount_cents"`
}

// ReconcileParams carries a settlement callback into the orchestrator.
type ReconcileParams struct {
	IntentID    string
	Status      string
	AmountCents int64
	Method      string
}

// Orchestrator drives intent creation and settlement reconciliation.
type Orchestrator struct {
	repo      appointments.Repository
	processor PaymentProcessor
	accounts  AccountResolver
	invoices  InvoiceGenerator
	outbox    events.Sink
	metrics   *metrics.AppointmentMetrics
	logger    *logging.Logger

	currency string
	feeCents int64
}

// NewOrchestrator constructs the settlement orchestrator.
func NewOrchestrator(repo appointments.Repository, processor PaymentProcessor, logger *logging.Logger) *Orchestrator {
	if repo == nil {
		panic("payments: repository required")
	}
	if processor == nil {
		panic("payments: processor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		repo:      repo,
		processor: processor,
		logger:    logger,
		currency:  "eur",
		feeCents:  DefaultMarketplaceFeeCents,
	}
}

// WithAccounts sets the connected-account resolver enabling the marketplace
// route.
func (o *Orchestrator) WithAccounts(r AccountResolver) *Orchestrator {
	o.accounts = r
	return o
}

// WithInvoices sets the invoice generator triggered on settlement.
func (o *Orchestrator) WithInvoices(g InvoiceGenerator) *Orchestrator {
	o.invoices = g
	return o
}

// WithOutbox sets the event sink for settlement notifications.
func (o *Orchestrator) WithOutbox(s events.Sink) *Orchestrator {
	o.outbox = s
	return o
}

// WithMetrics attaches prometheus instrumentation.
func (o *Orchestrator) WithMetrics(m *metrics.AppointmentMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithCurrency overrides the deployment currency (ISO code, lower case).
func (o *Orchestrator) WithCurrency(currency string) *Orchestrator {
	if currency != "" {
		o.currency = currency
	}
	return o
}

// WithMarketplaceFeeCents overrides the flat application fee.
func (o *Orchestrator) WithMarketplaceFeeCents(fee int64) *Orchestrator {
	if fee >= 0 {
		o.feeCents = fee
	}
	return o
}

// CreateIntent creates (or re-reads) the payment intent for an appointment.
// Only the appointment's client may pay. The intent id lands on the
// appointment before the client secret is returned, so a retried call finds
// the stored id and is idempotent.
func (o *Orchestrator) CreateIntent(ctx context.Context, actor identity.Actor, appointmentID int64) (*IntentResult, error) {
	ctx, span := orchestratorTracer.Start(ctx, "payments.create_intent")
	defer span.End()
	span.SetAttributes(attribute.Int64("equicare.appointment_id", appointmentID))

	appt, err := o.repo.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleClient || actor.UserID != appt.ClientID {
		return nil, apperr.New(apperr.KindForbidden, "only the appointment's client may pay")
	}
	if appt.Status != appointments.StatusConfirmed && appt.Status != appointments.StatusRequested {
		return nil, apperr.Newf(apperr.KindInvalidState, "appointment %d is %s, not payable", appt.ID, appt.Status)
	}
	if appt.PriceCents == nil {
		return nil, apperr.New(apperr.KindIncompletePricing, "appointment has no price")
	}

	if appt.PaymentIntentID != "" {
		return o.rereadIntent(ctx, appt)
	}

	route := RouteDirect
	params := IntentParams{
		AmountCents: *appt.PriceCents,
		Currency:    o.currency,
		CustomerRef: strconv.FormatInt(appt.ClientID, 10),
		Metadata: map[string]string{
			"appointment_id": strconv.FormatInt(appt.ID, 10),
		},
	}
	if o.accounts != nil {
		acct, err := o.accounts.Account(ctx, appt.ProfessionalID)
		switch {
		case err == nil && acct.ChargesEnabled:
			route = RouteMarketplace
			params.DestinationAccountID = acct.AccountID
			params.ApplicationFeeCents = o.feeCents
		case err == nil:
			// Account exists but cannot take charges yet, stay on direct.
		case errors.Is(err, ErrNoAccount):
		default:
			return nil, fmt.Errorf("payments: resolve account: %w", err)
		}
	}
	span.SetAttributes(attribute.String("equicare.route", route))

	intent, err := o.processor.CreateTransferableIntent(ctx, params)
	if err != nil {
		o.metrics.ObserveIntent(route, "error")
		return nil, classifyUpstream("intent creation failed", err)
	}

	appt.PaymentIntentID = intent.ID
	if _, err := o.repo.Update(ctx, appt); err != nil {
		// The processor intent exists but was not recorded. A retry re-reads
		// the appointment and either finds the id (racing writer stored it)
		// or creates a fresh intent; the orphan expires unconfirmed.
		o.metrics.ObserveIntent(route, "error")
		return nil, fmt.Errorf("payments: persist intent id: %w", err)
	}
	o.metrics.ObserveIntent(route, "ok")
	o.logger.Info("payment intent created",
		"appointment_id", appt.ID,
		"intent_id", intent.ID,
		"route", route,
		"amount_cents", intent.AmountCents,
	)
	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Route:        route,
		AmountCents:  *appt.PriceCents,
	}, nil
}

func (o *Orchestrator) rereadIntent(ctx context.Context, appt *appointments.Appointment) (*IntentResult, error) {
	intent, err := o.processor.RetrieveIntent(ctx, appt.PaymentIntentID)
	if err != nil {
		return nil, classifyUpstream("intent lookup failed", err)
	}
	route := RouteDirect
	if o.accounts != nil {
		if acct, err := o.accounts.Account(ctx, appt.ProfessionalID); err == nil && acct.ChargesEnabled {
			route = RouteMarketplace
		}
	}
	// The intent's amount is what will actually be captured, even when the
	// price was amended after the intent was created. Dry-run lookups carry no
	// amount; fall back to the stored price there.
	amount := intent.AmountCents
	if amount <= 0 && appt.PriceCents != nil {
		amount = *appt.PriceCents
	}
	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Route:        route,
		AmountCents:  amount,
	}, nil
}

// Reconcile applies an asynchronous settlement result. Success marks the
// appointment paid (paid_advance when only part of the price was captured),
// stamps the method and triggers invoice generation. Re-applying the same
// successful notification is a no-op. A reported failure leaves the payment
// status untouched and surfaces an upstream error.
func (o *Orchestrator) Reconcile(ctx context.Context, params ReconcileParams) (*appointments.Appointment, error) {
	ctx, span := orchestratorTracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("equicare.intent_id", params.IntentID),
		attribute.String("equicare.intent_status", params.Status),
	)

	if params.IntentID == "" {
		return nil, apperr.New(apperr.KindValidation, "intent id is required")
	}
	appt, err := o.repo.GetByPaymentIntent(ctx, params.IntentID)
	if err != nil {
		return nil, err
	}

	if params.Status != IntentStatusSucceeded {
		o.logger.Warn("settlement failed upstream",
			"appointment_id", appt.ID,
			"intent_id", params.IntentID,
			"status", params.Status,
		)
		return nil, apperr.Newf(apperr.KindUpstreamPayment, "intent %s resolved %s", params.IntentID, params.Status)
	}

	// Already settled: idempotent replay.
	if appt.PaymentStatus == appointments.PaymentPaidComplete || appt.PaymentStatus == appointments.PaymentPaidAdvance {
		return appt, nil
	}

	appt.PaymentStatus = appointments.PaymentPaidComplete
	if params.AmountCents > 0 && appt.PriceCents != nil && params.AmountCents < *appt.PriceCents {
		appt.PaymentStatus = appointments.PaymentPaidAdvance
	}
	if params.Method != "" {
		appt.PaymentMethod = params.Method
	}

	updated, err := o.repo.Update(ctx, appt)
	if err != nil {
		return nil, err
	}

	// The invoice is generated only once the settled status is durable; a
	// redelivered webhook short-circuits on the paid check above and never
	// regenerates. A failure here is logged, the settlement stands.
	if o.invoices != nil {
		if url, err := o.invoices.Generate(ctx, updated); err != nil {
			o.logger.Error("invoice generation failed", "error", err, "appointment_id", updated.ID)
		} else if url != "" {
			updated.InvoiceURL = url
			if stamped, err := o.repo.Update(ctx, updated); err != nil {
				o.logger.Error("invoice url not stamped", "error", err, "appointment_id", updated.ID, "invoice_url", url)
			} else {
				updated = stamped
			}
		}
	}
	o.logger.Info("settlement reconciled",
		"appointment_id", updated.ID,
		"intent_id", params.IntentID,
		"payment_status", updated.PaymentStatus,
	)
	o.emitSettled(ctx, updated, params)
	return updated, nil
}

// classifyUpstream tags processor errors that are not already classified.
func classifyUpstream(message string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindUpstreamPayment, message, err)
}

func (o *Orchestrator) emitSettled(ctx context.Context, appt *appointments.Appointment, params ReconcileParams) {
	if o.outbox == nil {
		return
	}
	amount := params.AmountCents
	if amount == 0 && appt.PriceCents != nil {
		amount = *appt.PriceCents
	}
	evt := events.PaymentSucceededV1{
		AppointmentID: appt.ID,
		RecipientID:   appt.ProfessionalID,
		IntentID:      params.IntentID,
		AmountCents:   amount,
		Method:        params.Method,
		OccurredAt:    time.Now().UTC(),
	}
	if _, err := o.outbox.Insert(ctx, appt.ID, events.KindPaymentSucceeded, evt); err != nil {
		o.logger.Error("failed to enqueue settlement event", "error", err, "appointment_id", appt.ID)
	}
}
