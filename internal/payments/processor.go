// Package payments settles confirmed appointments. The orchestrator creates
// transferable payment intents through an injected processor, routes between
// the marketplace rail (destination transfer to the professional's connected
// account plus a flat application fee) and the direct rail, and reconciles
// asynchronous settlement callbacks back into appointment state.
package payments

import "context"

// Intent statuses as reported by the processor.
const (
	IntentStatusRequiresPayment = "requires_payment_method"
	IntentStatusProcessing      = "processing"
	IntentStatusSucceeded       = "succeeded"
	IntentStatusFailed          = "payment_failed"
	IntentStatusCanceled        = "canceled"
)

// Settlement routes.
const (
	RouteMarketplace = "marketplace"
	RouteDirect      = "direct"
)

// IntentParams describes the intent to create. Amounts are minor units.
type IntentParams struct {
	AmountCents          int64
	Currency             string
	DestinationAccountID string
	ApplicationFeeCents  int64
	CustomerRef          string
	Metadata             map[string]string
}

// Intent is the processor's view of a payment intent.
type Intent struct {
	ID           string
	Status       string
	ClientSecret string
	AmountCents  int64
	Currency     string
}

// PaymentProcessor is the external payment collaborator. Implementations must
// be safe for concurrent use.
type PaymentProcessor interface {
	CreateTransferableIntent(ctx context.Context, params IntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}
