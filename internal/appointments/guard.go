package appointments

import (
	"github.com/equicare/equicare-platform/internal/apperr"
	"github.com/equicare/equicare-platform/internal/identity"
)

// The guard is a set of pure functions: no storage, no side effects. The
// service consults it before every mutation and tests exercise it directly.

// CanTransition decides whether the actor may fire the transition on the
// appointment snapshot. A nil return means allowed.
func CanTransition(actor identity.Actor, appt *Appointment, t Transition) error {
	if actor.Role == identity.RoleAdmin {
		// Admins read everything but never negotiate on behalf of a party.
		return apperr.New(apperr.KindForbidden, "admins may not execute negotiation transitions")
	}
	if !appt.Participant(actor) {
		return apperr.New(apperr.KindForbidden, "only the appointment's client or professional may act on it")
	}
	if !transitionAllowedFrom(t, appt.Status) {
		return apperr.Newf(apperr.KindInvalidState, "cannot %s an appointment in status %s", t, appt.Status)
	}

	switch t {
	case TransitionAccept:
		return canRespond(actor, appt, true)
	case TransitionReject:
		return canRespond(actor, appt, false)
	case TransitionComplete:
		if actor.Role != identity.RoleProfessional {
			return apperr.New(apperr.KindForbidden, "only the professional may complete an appointment")
		}
	case TransitionAmend:
		if actor.Role != identity.RoleProfessional {
			return apperr.New(apperr.KindForbidden, "a confirmed appointment can only be amended by the professional")
		}
	}
	return nil
}

// canRespond enforces the createdBy rule: the party who filed the request
// cannot answer it. The single exception is a professional finishing the
// pricing of their own still-unpriced request via accept.
func canRespond(actor identity.Actor, appt *Appointment, accepting bool) error {
	if actor.Role != appt.CreatedBy {
		return nil
	}
	if accepting && actor.Role == identity.RoleProfessional && !appt.Priced() && appt.Status == StatusRequested {
		// Pricing-completion exception: the professional who filed the
		// request may still supply the missing price/duration and confirm.
		return nil
	}
	verb := "reject"
	if accepting {
		verb = "accept"
	}
	return apperr.Newf(apperr.KindInvalidState, "the %s who created the request cannot %s it", actor.Role, verb)
}

// CanAmendField restricts which fields a professional may touch on a
// confirmed appointment. Party and horse identity are never mutable.
func CanAmendField(field string) bool {
	switch field {
	case "status", "notes", "price", "date", "duration":
		return true
	}
	return false
}

// CanRead reports whether the actor may see the appointment at all. Admins
// read any appointment; parties read their own.
func CanRead(actor identity.Actor, appt *Appointment) bool {
	if actor.Role == identity.RoleAdmin {
		return true
	}
	return appt.Participant(actor)
}
