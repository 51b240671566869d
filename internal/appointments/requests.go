package appointments

import (
	"time"

	"github.com/equicare/equicare-platform/internal/apperr"
)

// Per-transition request types. Each carries only the fields its transition
// may legally touch; the HTTP layer decodes into these after converting any
// decimal amounts to minor units.

// RequestAppointment creates a new appointment in the requested state.
type RequestAppointment struct {
	CounterpartyID  int64 // the other party: professional for clients, client for professionals
	HorseIDs        []int64
	Date            time.Time
	DurationMinutes *int32
	Location        string
	PriceCents      *int64
	Notes           string
	IsPeriodic      bool
	Frequency       Frequency
	EndDate         *time.Time
}

// Validate checks structural requirements before the machine runs.
func (r RequestAppointment) Validate() error {
	if r.CounterpartyID == 0 {
		return apperr.New(apperr.KindValidation, "counterparty is required")
	}
	if len(r.HorseIDs) == 0 {
		return apperr.New(apperr.KindValidation, "at least one horse is required")
	}
	seen := make(map[int64]bool, len(r.HorseIDs))
	for _, id := range r.HorseIDs {
		if id == 0 {
			return apperr.New(apperr.KindValidation, "horse id must be set")
		}
		if seen[id] {
			return apperr.Newf(apperr.KindValidation, "horse %d listed twice", id)
		}
		seen[id] = true
	}
	if r.Date.IsZero() {
		return apperr.New(apperr.KindValidation, "date is required")
	}
	if r.DurationMinutes != nil && *r.DurationMinutes <= 0 {
		return apperr.New(apperr.KindValidation, "duration must be positive")
	}
	if r.PriceCents != nil && *r.PriceCents < 0 {
		return apperr.New(apperr.KindInvalidAmount, "price must not be negative")
	}
	if r.IsPeriodic {
		if !r.Frequency.Valid() {
			return apperr.New(apperr.KindValidation, "periodic appointments need a frequency of weekly, biweekly or monthly")
		}
		if r.EndDate != nil && r.EndDate.Before(r.Date) {
			return apperr.New(apperr.KindValidation, "recurrence end date precedes start date")
		}
	}
	return nil
}

// AcceptAppointment confirms a requested or counter-proposed appointment.
// Price and duration overrides are only accepted from professionals.
type AcceptAppointment struct {
	AppointmentID   int64
	PriceCents      *int64
	DurationMinutes *int32
}

func (r AcceptAppointment) Validate() error {
	if r.AppointmentID == 0 {
		return apperr.New(apperr.KindValidation, "appointment id is required")
	}
	if r.PriceCents != nil && *r.PriceCents < 0 {
		return apperr.New(apperr.KindInvalidAmount, "price must not be negative")
	}
	if r.DurationMinutes != nil && *r.DurationMinutes <= 0 {
		return apperr.New(apperr.KindValidation, "duration must be positive")
	}
	return nil
}

// RejectAppointment declines a request outright.
type RejectAppointment struct {
	AppointmentID int64
	Reason        string
}

func (r RejectAppointment) Validate() error {
	if r.AppointmentID == 0 {
		return apperr.New(apperr.KindValidation, "appointment id is required")
	}
	return nil
}

// ProposeAlternative counter-offers with a new date, creating a sibling
// appointment linked to the source.
type ProposeAlternative struct {
	AppointmentID   int64
	Date            time.Time
	DurationMinutes *int32
	PriceCents      *int64
	Notes           string
}

func (r ProposeAlternative) Validate() error {
	if r.AppointmentID == 0 {
		return apperr.New(apperr.KindValidation, "appointment id is required")
	}
	if r.Date.IsZero() {
		return apperr.New(apperr.KindValidation, "an alternative date is required")
	}
	if r.PriceCents != nil && *r.PriceCents < 0 {
		return apperr.New(apperr.KindInvalidAmount, "price must not be negative")
	}
	if r.DurationMinutes != nil && *r.DurationMinutes <= 0 {
		return apperr.New(apperr.KindValidation, "duration must be positive")
	}
	return nil
}

// CancelAppointment soft-retires an appointment from any non-terminal state.
type CancelAppointment struct {
	AppointmentID int64
	Reason        string
}

func (r CancelAppointment) Validate() error {
	if r.AppointmentID == 0 {
		return apperr.New(apperr.KindValidation, "appointment id is required")
	}
	return nil
}

// CompleteAppointment marks a confirmed appointment as carried out.
type CompleteAppointment struct {
	AppointmentID int64
	Report        string
}

func (r CompleteAppointment) Validate() error {
	if r.AppointmentID == 0 {
		return apperr.New(apperr.KindValidation, "appointment id is required")
	}
	return nil
}

// AmendAppointment lets the professional adjust a confirmed appointment
// within the allowed field set (price, notes, date, duration).
type AmendAppointment struct {
	AppointmentID   int64
	PriceCents      *int64
	Notes           *string
	Date            *time.Time
	DurationMinutes *int32
}

func (r AmendAppointment) Validate() error {
	if r.AppointmentID == 0 {
		return apperr.New(apperr.KindValidation, "appointment id is required")
	}
	if r.PriceCents == nil && r.Notes == nil && r.Date == nil && r.DurationMinutes == nil {
		return apperr.New(apperr.KindValidation, "nothing to amend")
	}
	if r.PriceCents != nil && *r.PriceCents < 0 {
		return apperr.New(apperr.KindInvalidAmount, "price must not be negative")
	}
	if r.DurationMinutes != nil && *r.DurationMinutes <= 0 {
		return apperr.New(apperr.KindValidation, "duration must be positive")
	}
	return nil
}
