package directory

import (
	"context"
	"sync"
)

// InMemoryDirectory is a map-backed directory for tests and development mode.
type InMemoryDirectory struct {
	mu          sync.RWMutex
	nextConnID  int64
	connections map[[2]int64]*Connection
	horseOwners map[int64]int64
	emails      map[int64]string
}

// NewInMemoryDirectory creates an empty in-memory directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		nextConnID:  1,
		connections: make(map[[2]int64]*Connection),
		horseOwners: make(map[int64]int64),
		emails:      make(map[int64]string),
	}
}

// AddConnection registers an accepted client/professional link.
func (d *InMemoryDirectory) AddConnection(clientID, professionalID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connections[[2]int64{clientID, professionalID}] = &Connection{
		ID:             d.nextConnID,
		ClientID:       clientID,
		ProfessionalID: professionalID,
	}
	d.nextConnID++
}

// AddHorse registers a horse with its owner.
func (d *InMemoryDirectory) AddHorse(horseID, ownerID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.horseOwners[horseID] = ownerID
}

// AddEmail registers a user's notification address.
func (d *InMemoryDirectory) AddEmail(userID int64, email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails[userID] = email
}

// AcceptedConnection returns the accepted link between the parties.
func (d *InMemoryDirectory) AcceptedConnection(ctx context.Context, clientID, professionalID int64) (*Connection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	conn, ok := d.connections[[2]int64{clientID, professionalID}]
	if !ok {
		return nil, ErrNoConnection
	}
	cp := *conn
	return &cp, nil
}

// Owner returns the owner of a horse.
func (d *InMemoryDirectory) Owner(ctx context.Context, horseID int64) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	owner, ok := d.horseOwners[horseID]
	if !ok {
		return 0, ErrHorseNotFound
	}
	return owner, nil
}

// Email returns the registered address, empty when unknown.
func (d *InMemoryDirectory) Email(ctx context.Context, userID int64) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.emails[userID], nil
}

var (
	_ Connections = (*InMemoryDirectory)(nil)
	_ Horses      = (*InMemoryDirectory)(nil)
	_ Users       = (*InMemoryDirectory)(nil)
)
