package appointments

import (
	"time"

	"github.com/equicare/equicare-platform/internal/identity"
)

// Appointment is the central entity of the negotiation protocol. Monetary
// fields are always integer minor units (cents); the HTTP boundary owns all
// decimal conversion.
type Appointment struct {
	ID             int64
	ClientID       int64
	ProfessionalID int64

	// HorseIDs is a non-empty ordered set; the first element is the primary
	// horse for legacy single-horse consumers.
	HorseIDs []int64

	Date            time.Time
	DurationMinutes *int32
	Location        string
	IsPeriodic      bool
	Frequency       Frequency
	EndDate         *time.Time

	PriceCents      *int64
	CommissionCents int64
	PaymentStatus   PaymentStatus
	PaymentMethod   string
	PaymentIntentID string
	InvoiceURL      string

	Status                Status
	CreatedBy             identity.Role
	HasAlternative        bool
	OriginalAppointmentID *int64
	Notes                 string

	ReminderSent bool
	ReportSent   bool

	// Version backs the optimistic concurrency check: updates carry the
	// version they read and fail with a conflict when it moved.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrimaryHorseID returns the first horse reference, 0 when unset.
func (a *Appointment) PrimaryHorseID() int64 {
	if len(a.HorseIDs) == 0 {
		return 0
	}
	return a.HorseIDs[0]
}

// Participant reports whether the actor is one of the appointment's parties
// acting from the matching side.
func (a *Appointment) Participant(actor identity.Actor) bool {
	switch actor.Role {
	case identity.RoleClient:
		return actor.UserID == a.ClientID
	case identity.RoleProfessional:
		return actor.UserID == a.ProfessionalID
	}
	return false
}

// Priced reports whether both price and duration are set, the precondition
// for confirmation.
func (a *Appointment) Priced() bool {
	return a.PriceCents != nil && a.DurationMinutes != nil && *a.DurationMinutes > 0
}

// Clone returns a deep copy so callers can mutate snapshots safely.
func (a *Appointment) Clone() *Appointment {
	cp := *a
	cp.HorseIDs = append([]int64(nil), a.HorseIDs...)
	if a.DurationMinutes != nil {
		d := *a.DurationMinutes
		cp.DurationMinutes = &d
	}
	if a.PriceCents != nil {
		p := *a.PriceCents
		cp.PriceCents = &p
	}
	if a.EndDate != nil {
		e := *a.EndDate
		cp.EndDate = &e
	}
	if a.OriginalAppointmentID != nil {
		o := *a.OriginalAppointmentID
		cp.OriginalAppointmentID = &o
	}
	return &cp
}
