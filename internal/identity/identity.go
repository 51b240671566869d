// Package identity carries the acting user through request contexts.
package identity

import "context"

// Role is the marketplace-side a user acts from.
type Role string

const (
	RoleClient       Role = "client"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleProfessional, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies who is performing an operation.
type Actor struct {
	UserID int64
	Role   Role
}

type ctxKey string

const actorKey ctxKey = "equicare.actor"

// WithActor stores the acting user in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the acting user if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok && actor.UserID != 0
}
