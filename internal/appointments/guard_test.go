package appointments

import (
	"errors"
	"testing"

	"github.com/equicare/equicare-platform/internal/identity"
)

var (
	client       = identity.Actor{UserID: 1, Role: identity.RoleClient}
	professional = identity.Actor{UserID: 2, Role: identity.RoleProfessional}
	admin        = identity.Actor{UserID: 99, Role: identity.RoleAdmin}
	outsider     = identity.Actor{UserID: 50, Role: identity.RoleClient}
)

func requestedBy(role identity.Role) *Appointment {
	price := int64(5000)
	duration := int32(60)
	return &Appointment{
		ID:              10,
		ClientID:        1,
		ProfessionalID:  2,
		HorseIDs:        []int64{100},
		Status:          StatusRequested,
		CreatedBy:       role,
		PriceCents:      &price,
		DurationMinutes: &duration,
	}
}

func TestGuardDeniesAdminTransitions(t *testing.T) {
	appt := requestedBy(identity.RoleClient)
	if err := CanTransition(admin, appt, TransitionAccept); err == nil {
		t.Fatalf("admin must not accept appointments")
	}
	if !CanRead(admin, appt) {
		t.Fatalf("admin must be able to read any appointment")
	}
}

func TestGuardDeniesNonParticipants(t *testing.T) {
	appt := requestedBy(identity.RoleClient)
	err := CanTransition(outsider, appt, TransitionCancel)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
	if CanRead(outsider, appt) {
		t.Fatalf("outsider must not read the appointment")
	}
}

func TestGuardCreatorCannotAnswerOwnRequest(t *testing.T) {
	appt := requestedBy(identity.RoleClient)
	if err := CanTransition(client, appt, TransitionAccept); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("client accepting own request should be invalid_state, got %v", err)
	}
	if err := CanTransition(client, appt, TransitionReject); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("client rejecting own request should be invalid_state, got %v", err)
	}
	if err := CanTransition(professional, appt, TransitionAccept); err != nil {
		t.Fatalf("professional accepting client request should pass, got %v", err)
	}
}

func TestProfessionalPricingCompletionException(t *testing.T) {
	appt := requestedBy(identity.RoleProfessional)
	appt.PriceCents = nil

	// Unpriced own request: accepting is the sanctioned way to finish it.
	if err := CanTransition(professional, appt, TransitionAccept); err != nil {
		t.Fatalf("pricing-completion accept should pass, got %v", err)
	}
	// Rejecting your own request never makes sense.
	if err := CanTransition(professional, appt, TransitionReject); err == nil {
		t.Fatalf("professional rejecting own request must fail")
	}

	// Fully priced own request: the exception does not apply.
	priced := requestedBy(identity.RoleProfessional)
	if err := CanTransition(professional, priced, TransitionAccept); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("priced self-accept should be invalid_state, got %v", err)
	}
}

func TestTransitionStateTable(t *testing.T) {
	cases := []struct {
		status  Status
		t       Transition
		actor   identity.Actor
		allowed bool
	}{
		{StatusRequested, TransitionAccept, professional, true},
		{StatusAlternativeProposed, TransitionAccept, professional, true},
		{StatusConfirmed, TransitionAccept, professional, false},
		{StatusConfirmed, TransitionCancel, client, true},
		{StatusConfirmed, TransitionCancel, professional, true},
		{StatusConfirmed, TransitionComplete, professional, true},
		{StatusConfirmed, TransitionComplete, client, false},
		{StatusRequested, TransitionComplete, professional, false},
		{StatusCompleted, TransitionCancel, client, false},
		{StatusCancelled, TransitionAccept, professional, false},
		{StatusRejected, TransitionProposeAlternative, client, false},
		{StatusRequested, TransitionProposeAlternative, professional, true},
		{StatusRequested, TransitionProposeAlternative, client, true},
		{StatusConfirmed, TransitionAmend, professional, true},
		{StatusConfirmed, TransitionAmend, client, false},
	}
	for _, tc := range cases {
		appt := requestedBy(identity.RoleClient)
		appt.Status = tc.status
		err := CanTransition(tc.actor, appt, tc.t)
		if tc.allowed && err != nil {
			t.Errorf("%s from %s by %s: expected allowed, got %v", tc.t, tc.status, tc.actor.Role, err)
		}
		if !tc.allowed && err == nil {
			t.Errorf("%s from %s by %s: expected denied", tc.t, tc.status, tc.actor.Role)
		}
	}
}

func TestCanAmendField(t *testing.T) {
	for _, allowed := range []string{"status", "notes", "price", "date", "duration"} {
		if !CanAmendField(allowed) {
			t.Errorf("field %s should be amendable", allowed)
		}
	}
	for _, denied := range []string{"client_id", "professional_id", "horse_ids", "created_by"} {
		if CanAmendField(denied) {
			t.Errorf("field %s must never be amendable", denied)
		}
	}
}
