package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/equicare/equicare-platform/internal/apperr"
	"github.com/equicare/equicare-platform/pkg/logging"
)

var stripeTracer = otel.Tracer("equicare.internal.payments.stripe")

// StripeProcessor creates payment intents against the Stripe API. Marketplace
// settlements ride Stripe Connect destination charges: the intent carries a
// transfer to the professional's connected account and the platform keeps the
// application fee.
type StripeProcessor struct {
	secretKey  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeProcessor creates a Stripe-backed payment processor.
func NewStripeProcessor(secretKey string, logger *logging.Logger) *StripeProcessor {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeProcessor{
		secretKey:  secretKey,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (p *StripeProcessor) WithBaseURL(baseURL string) *StripeProcessor {
	if baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	return p
}

// WithDryRun enables dry-run mode (returns fake intents without calling Stripe).
func (p *StripeProcessor) WithDryRun(enabled bool) *StripeProcessor {
	p.dryRun = enabled
	return p
}

// WithHTTPClient overrides the HTTP client.
func (p *StripeProcessor) WithHTTPClient(c *http.Client) *StripeProcessor {
	if c != nil {
		p.httpClient = c
	}
	return p
}

// CreateTransferableIntent creates a payment intent, optionally with a
// destination transfer and application fee for the marketplace route.
func (p *StripeProcessor) CreateTransferableIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_payment_intent")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("equicare.amount_cents", params.AmountCents),
		attribute.String("equicare.currency", params.Currency),
		attribute.Bool("equicare.marketplace", params.DestinationAccountID != ""),
	)

	if params.AmountCents <= 0 {
		return nil, apperr.New(apperr.KindInvalidAmount, "intent amount must be positive")
	}

	if p.dryRun {
		fakeID := "pi_dryrun_" + uuid.New().String()[:8]
		p.logger.Info("stripe dry run: skipping payment intent creation",
			"amount_cents", params.AmountCents, "destination", params.DestinationAccountID)
		return &Intent{
			ID:           fakeID,
			Status:       IntentStatusRequiresPayment,
			ClientSecret: fakeID + "_secret_dryrun",
			AmountCents:  params.AmountCents,
			Currency:     params.Currency,
		}, nil
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", params.AmountCents))
	form.Set("currency", params.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.CustomerRef != "" {
		form.Set("customer", params.CustomerRef)
	}
	if params.DestinationAccountID != "" {
		form.Set("transfer_data[destination]", params.DestinationAccountID)
		if params.ApplicationFeeCents > 0 {
			form.Set("application_fee_amount", fmt.Sprintf("%d", params.ApplicationFeeCents))
		}
	}
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	intent, err := p.do(ctx, http.MethodPost, "/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// RetrieveIntent fetches the current status of an intent.
func (p *StripeProcessor) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("equicare.intent_id", id))

	if id == "" {
		return nil, apperr.New(apperr.KindValidation, "intent id is required")
	}
	if p.dryRun || strings.HasPrefix(id, "pi_dryrun_") {
		return &Intent{ID: id, Status: IntentStatusRequiresPayment, ClientSecret: id + "_secret_dryrun"}, nil
	}
	return p.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil)
}

func (p *StripeProcessor) do(ctx context.Context, method, path string, body io.Reader) (*Intent, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Stripe-Version", p.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamPayment, "stripe unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		msg := stripeErrorMessage(raw)
		return nil, apperr.Newf(apperr.KindUpstreamPayment, "stripe api status %d: %s", resp.StatusCode, msg)
	}

	var parsed stripeIntentObject
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.ID == "" {
		return nil, apperr.New(apperr.KindUpstreamPayment, "stripe response missing intent id")
	}
	return &Intent{
		ID:           parsed.ID,
		Status:       parsed.Status,
		ClientSecret: parsed.ClientSecret,
		AmountCents:  parsed.Amount,
		Currency:     parsed.Currency,
	}, nil
}

// stripeIntentObject is the subset of Stripe's PaymentIntent we need.
type stripeIntentObject struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func stripeErrorMessage(raw []byte) string {
	var parsed stripeErrorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(raw)
}

var _ PaymentProcessor = (*StripeProcessor)(nil)
