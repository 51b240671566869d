// Package directory exposes the external user-graph collaborators the
// negotiation machine depends on: the client/professional connection
// directory and the horse ownership oracle. Users, horses and connections are
// owned elsewhere; this package only reads them.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoConnection is returned when the two parties have no accepted link.
var ErrNoConnection = errors.New("directory: no accepted connection between parties")

// ErrHorseNotFound is returned when a horse reference does not exist.
var ErrHorseNotFound = errors.New("directory: horse not found")

// Connection is an accepted bidirectional client/professional relationship.
type Connection struct {
	ID             int64
	ClientID       int64
	ProfessionalID int64
}

// Connections looks up accepted client/professional links.
type Connections interface {
	// AcceptedConnection returns the accepted link between the two parties,
	// ErrNoConnection when none exists.
	AcceptedConnection(ctx context.Context, clientID, professionalID int64) (*Connection, error)
}

// Horses resolves horse ownership.
type Horses interface {
	// Owner returns the owning user id for a horse, ErrHorseNotFound when
	// the horse does not exist.
	Owner(ctx context.Context, horseID int64) (int64, error)
}

// Users resolves contact details for notification delivery.
type Users interface {
	// Email returns the address to notify a user at; empty when the user has
	// no deliverable address.
	Email(ctx context.Context, userID int64) (string, error)
}

// PostgresDirectory reads connections, horses and users from the shared
// relational database.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory initializes a directory backed by pgxpool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	return &PostgresDirectory{pool: pool}
}

// AcceptedConnection returns the accepted link between client and professional.
func (d *PostgresDirectory) AcceptedConnection(ctx context.Context, clientID, professionalID int64) (*Connection, error) {
	query := `
		SELECT id, client_id, professional_id
		FROM connections
		WHERE client_id = $1 AND professional_id = $2 AND status = 'accepted'
	`
	var conn Connection
	if err := d.pool.QueryRow(ctx, query, clientID, professionalID).Scan(&conn.ID, &conn.ClientID, &conn.ProfessionalID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoConnection
		}
		return nil, fmt.Errorf("directory: connection lookup: %w", err)
	}
	return &conn, nil
}

// Owner returns the owner of a horse.
func (d *PostgresDirectory) Owner(ctx context.Context, horseID int64) (int64, error) {
	var ownerID int64
	if err := d.pool.QueryRow(ctx, `SELECT owner_id FROM horses WHERE id = $1`, horseID).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrHorseNotFound
		}
		return 0, fmt.Errorf("directory: horse lookup: %w", err)
	}
	return ownerID, nil
}

// Email returns the email address of a user, empty when the user is unknown.
func (d *PostgresDirectory) Email(ctx context.Context, userID int64) (string, error) {
	var email string
	if err := d.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("directory: user lookup: %w", err)
	}
	return email, nil
}

var (
	_ Connections = (*PostgresDirectory)(nil)
	_ Horses      = (*PostgresDirectory)(nil)
	_ Users       = (*PostgresDirectory)(nil)
)
