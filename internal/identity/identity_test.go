package identity

import (
	"context"
	"testing"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{UserID: 7, Role: RoleClient})
	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatalf("expected actor in context")
	}
	if actor.UserID != 7 || actor.Role != RoleClient {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestActorMissing(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("empty context should not carry an actor")
	}
}

func TestZeroActorRejected(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{})
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatalf("zero-valued actor should be treated as absent")
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleClient, RoleProfessional, RoleAdmin} {
		if !r.Valid() {
			t.Errorf("role %s should be valid", r)
		}
	}
	if Role("owner").Valid() {
		t.Errorf("unknown role should be invalid")
	}
}
