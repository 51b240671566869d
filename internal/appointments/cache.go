package appointments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CachedRepository wraps a Repository with a Redis cache for list reads.
// Listing a user's appointments dominates read traffic; single-row reads and
// all writes go straight to the primary so the optimistic-version semantics
// are untouched. Writes invalidate the affected list keys.
type CachedRepository struct {
	primary Repository
	client  *redis.Client
	ttl     time.Duration
	tracer  trace.Tracer
}

// NewCachedRepository wraps the primary repository with a list-read cache.
func NewCachedRepository(primary Repository, client *redis.Client, ttl time.Duration) *CachedRepository {
	if primary == nil {
		panic("appointments: primary repository required")
	}
	return &CachedRepository{
		primary: primary,
		client:  client,
		ttl:     ttl,
		tracer:  otel.Tracer("equicare.internal.appointments.cache"),
	}
}

func clientListKey(id int64) string       { return fmt.Sprintf("appointments:client:%d", id) }
func professionalListKey(id int64) string { return fmt.Sprintf("appointments:professional:%d", id) }
func horseListKey(id int64) string        { return fmt.Sprintf("appointments:horse:%d", id) }

// Get always reads through to the primary: transition decisions must never
// run on a stale snapshot.
func (r *CachedRepository) Get(ctx context.Context, id int64) (*Appointment, error) {
	return r.primary.Get(ctx, id)
}

// GetByPaymentIntent reads through to the primary.
func (r *CachedRepository) GetByPaymentIntent(ctx context.Context, intentID string) (*Appointment, error) {
	return r.primary.GetByPaymentIntent(ctx, intentID)
}

// Create delegates and invalidates the parties' list entries.
func (r *CachedRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	created, err := r.primary.Create(ctx, appt)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, created)
	return created, nil
}

// Update delegates and invalidates the parties' list entries.
func (r *CachedRepository) Update(ctx context.Context, appt *Appointment) (*Appointment, error) {
	updated, err := r.primary.Update(ctx, appt)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, updated)
	return updated, nil
}

// CreateAlternative delegates and invalidates both rows' list entries.
func (r *CachedRepository) CreateAlternative(ctx context.Context, source *Appointment, proposal *Appointment) (*Appointment, *Appointment, error) {
	updatedSource, createdProposal, err := r.primary.CreateAlternative(ctx, source, proposal)
	if err != nil {
		return nil, nil, err
	}
	r.invalidate(ctx, updatedSource)
	r.invalidate(ctx, createdProposal)
	return updatedSource, createdProposal, nil
}

// ListByClient serves from cache when possible.
func (r *CachedRepository) ListByClient(ctx context.Context, clientID int64) ([]Appointment, error) {
	return r.cachedList(ctx, clientListKey(clientID), func() ([]Appointment, error) {
		return r.primary.ListByClient(ctx, clientID)
	})
}

// ListByProfessional serves from cache when possible.
func (r *CachedRepository) ListByProfessional(ctx context.Context, professionalID int64) ([]Appointment, error) {
	return r.cachedList(ctx, professionalListKey(professionalID), func() ([]Appointment, error) {
		return r.primary.ListByProfessional(ctx, professionalID)
	})
}

// ListByHorse serves from cache when possible.
func (r *CachedRepository) ListByHorse(ctx context.Context, horseID int64) ([]Appointment, error) {
	return r.cachedList(ctx, horseListKey(horseID), func() ([]Appointment, error) {
		return r.primary.ListByHorse(ctx, horseID)
	})
}

func (r *CachedRepository) cachedList(ctx context.Context, key string, load func() ([]Appointment, error)) ([]Appointment, error) {
	ctx, span := r.tracer.Start(ctx, "appointments.cached_list")
	defer span.End()

	if r.client != nil {
		if cached, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var out []Appointment
			if err := json.Unmarshal(cached, &out); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return out, nil
			}
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	out, err := load()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if r.client != nil {
		if data, err := json.Marshal(out); err == nil {
			r.client.Set(ctx, key, data, r.ttl)
		}
	}
	return out, nil
}

func (r *CachedRepository) invalidate(ctx context.Context, appt *Appointment) {
	if r.client == nil || appt == nil {
		return
	}
	keys := []string{
		clientListKey(appt.ClientID),
		professionalListKey(appt.ProfessionalID),
	}
	for _, horseID := range appt.HorseIDs {
		keys = append(keys, horseListKey(horseID))
	}
	r.client.Del(ctx, keys...)
}

var _ Repository = (*CachedRepository)(nil)
