package appointments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository implements Repository with an in-process map. It honors
// the same optimistic-version semantics as the Postgres repository, so the
// service and its tests behave identically against either.
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*Appointment
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		nextID: 1,
		rows:   make(map[int64]*Appointment),
	}
}

// Get retrieves an appointment by id.
func (r *InMemoryRepository) Get(ctx context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return appt.Clone(), nil
}

// GetByPaymentIntent retrieves the appointment carrying the intent id.
func (r *InMemoryRepository) GetByPaymentIntent(ctx context.Context, intentID string) (*Appointment, error) {
	if intentID == "" {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, appt := range r.rows {
		if appt.PaymentIntentID == intentID {
			return appt.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Create inserts a new appointment at version 1.
func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(appt), nil
}

func (r *InMemoryRepository) createLocked(appt *Appointment) *Appointment {
	stored := appt.Clone()
	stored.ID = r.nextID
	r.nextID++
	stored.Version = 1
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Status = NormalizeStatus(string(stored.Status))
	r.rows[stored.ID] = stored
	return stored.Clone()
}

// Update applies the compare-and-swap write.
func (r *InMemoryRepository) Update(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(appt)
}

func (r *InMemoryRepository) updateLocked(appt *Appointment) (*Appointment, error) {
	current, ok := r.rows[appt.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if current.Version != appt.Version {
		return nil, ErrConflict
	}
	stored := appt.Clone()
	// Identity fields never move on update.
	stored.ClientID = current.ClientID
	stored.ProfessionalID = current.ProfessionalID
	stored.HorseIDs = append([]int64(nil), current.HorseIDs...)
	stored.CreatedBy = current.CreatedBy
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1
	stored.UpdatedAt = time.Now().UTC()
	r.rows[stored.ID] = stored
	return stored.Clone(), nil
}

// CreateAlternative applies the source flag and the proposal insert under one
// lock, mirroring the Postgres transaction.
func (r *InMemoryRepository) CreateAlternative(ctx context.Context, source *Appointment, proposal *Appointment) (*Appointment, *Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updatedSource, err := r.updateLocked(source)
	if err != nil {
		return nil, nil, err
	}
	createdProposal := r.createLocked(proposal)
	return updatedSource, createdProposal, nil
}

func (r *InMemoryRepository) list(match func(*Appointment) bool) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Appointment
	for _, appt := range r.rows {
		if match(appt) {
			out = append(out, *appt.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ListByClient returns appointments where the user is the client.
func (r *InMemoryRepository) ListByClient(ctx context.Context, clientID int64) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.ClientID == clientID }), nil
}

// ListByProfessional returns appointments where the user is the professional.
func (r *InMemoryRepository) ListByProfessional(ctx context.Context, professionalID int64) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.ProfessionalID == professionalID }), nil
}

// ListByHorse returns appointments referencing the horse.
func (r *InMemoryRepository) ListByHorse(ctx context.Context, horseID int64) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool {
		for _, id := range a.HorseIDs {
			if id == horseID {
				return true
			}
		}
		return false
	}), nil
}

var _ Repository = (*InMemoryRepository)(nil)
var _ Repository = (*PostgresRepository)(nil)
