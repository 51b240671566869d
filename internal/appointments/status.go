package appointments

// Status is the negotiation state of an appointment.
type Status string

const (
	StatusRequested           Status = "requested"
	StatusAlternativeProposed Status = "alternative_proposed"
	StatusConfirmed           Status = "confirmed"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
	StatusRejected            Status = "rejected"
)

// legacyStatusPending is the historical alias for the initial state. It is
// normalized to StatusRequested at the repository boundary and never appears
// inside the state machine.
const legacyStatusPending = "pending"

// NormalizeStatus maps stored status strings onto the canonical enumeration.
func NormalizeStatus(raw string) Status {
	if raw == legacyStatusPending {
		return StatusRequested
	}
	return Status(raw)
}

// Valid reports whether the status is a known canonical state.
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusAlternativeProposed, StatusConfirmed,
		StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further negotiation transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// PaymentStatus tracks settlement progress, layered on top of Status.
type PaymentStatus string

const (
	PaymentPending      PaymentStatus = "pending"
	PaymentUnpaid       PaymentStatus = "unpaid"
	PaymentPaidAdvance  PaymentStatus = "paid_advance"
	PaymentPaidComplete PaymentStatus = "paid_complete"
)

// Transition identifies a negotiation operation for authorization and metrics.
type Transition string

const (
	TransitionRequest            Transition = "request"
	TransitionAccept             Transition = "accept"
	TransitionReject             Transition = "reject"
	TransitionProposeAlternative Transition = "propose_alternative"
	TransitionCancel             Transition = "cancel"
	TransitionComplete           Transition = "complete"
	TransitionAmend              Transition = "amend"
)

// allowedFrom defines the source states each transition may fire from.
// TransitionRequest is absent: it creates the appointment.
var allowedFrom = map[Transition][]Status{
	TransitionAccept:             {StatusRequested, StatusAlternativeProposed},
	TransitionReject:             {StatusRequested, StatusAlternativeProposed},
	TransitionProposeAlternative: {StatusRequested, StatusAlternativeProposed},
	TransitionCancel:             {StatusRequested, StatusAlternativeProposed, StatusConfirmed},
	TransitionComplete:           {StatusConfirmed},
	TransitionAmend:              {StatusConfirmed},
}

// transitionAllowedFrom reports whether a transition is legal from a state.
func transitionAllowedFrom(t Transition, from Status) bool {
	for _, s := range allowedFrom[t] {
		if s == from {
			return true
		}
	}
	return false
}

// Frequency is the recurrence cadence of a periodic appointment.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid reports whether the frequency is a known cadence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}
