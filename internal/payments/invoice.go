package payments

import (
	"context"
	"fmt"

	"github.com/equicare/equicare-platform/internal/appointments"
)

// InvoiceGenerator produces an invoice for a settled appointment and returns
// its URL. Generation runs after reconciliation; a failure is logged but never
// blocks settlement.
type InvoiceGenerator interface {
	Generate(ctx context.Context, appt *appointments.Appointment) (string, error)
}

// StaticInvoices returns deterministic platform URLs; the actual document is
// rendered by an external service keyed on the appointment id.
type StaticInvoices struct {
	baseURL string
}

func NewStaticInvoices(baseURL string) *StaticInvoices {
	return &StaticInvoices{baseURL: baseURL}
}

func (g *StaticInvoices) Generate(ctx context.Context, appt *appointments.Appointment) (string, error) {
	if g.baseURL == "" {
		return "", nil
	}
	return fmt.Sprintf("%s/invoices/appointments/%d", g.baseURL, appt.ID), nil
}

var _ InvoiceGenerator = (*StaticInvoices)(nil)
