package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/equicare/equicare-platform/internal/identity"
)

// Repository is the persistence contract the state machine depends on.
// Update performs an optimistic concurrency check on Appointment.Version and
// fails with ErrConflict when the stored row moved since it was read.
type Repository interface {
	Get(ctx context.Context, id int64) (*Appointment, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*Appointment, error)
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)
	Update(ctx context.Context, appt *Appointment) (*Appointment, error)
	// CreateAlternative atomically flags the source appointment and inserts
	// the sibling proposal, so the hasAlternative invariant never dangles.
	CreateAlternative(ctx context.Context, source *Appointment, proposal *Appointment) (*Appointment, *Appointment, error)
	ListByClient(ctx context.Context, clientID int64) ([]Appointment, error)
	ListByProfessional(ctx context.Context, professionalID int64) ([]Appointment, error)
	ListByHorse(ctx context.Context, horseID int64) ([]Appointment, error)
}

// dbPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores appointments in the relational database.
type PostgresRepository struct {
	pool dbPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// NewPostgresRepositoryWithPool allows injecting a mocked pool for tests.
func NewPostgresRepositoryWithPool(pool dbPool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pool required")
	}
	return &PostgresRepository{pool: pool}
}

const appointmentColumns = `
	id, client_id, professional_id, horse_ids, date, duration_minutes,
	location, is_periodic, frequency, end_date, price_cents, commission_cents,
	payment_status, payment_method, payment_intent_id, invoice_url, status,
	created_by, has_alternative, original_appointment_id, notes,
	reminder_sent, report_sent, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, createdBy, paymentStatus, frequency string
	if err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.ProfessionalID,
		&a.HorseIDs,
		&a.Date,
		&a.DurationMinutes,
		&a.Location,
		&a.IsPeriodic,
		&frequency,
		&a.EndDate,
		&a.PriceCents,
		&a.CommissionCents,
		&paymentStatus,
		&a.PaymentMethod,
		&a.PaymentIntentID,
		&a.InvoiceURL,
		&status,
		&createdBy,
		&a.HasAlternative,
		&a.OriginalAppointmentID,
		&a.Notes,
		&a.ReminderSent,
		&a.ReportSent,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	// Legacy rows may still say "pending"; the canonical state is requested.
	a.Status = NormalizeStatus(status)
	a.CreatedBy = identity.Role(createdBy)
	a.PaymentStatus = PaymentStatus(paymentStatus)
	a.Frequency = Frequency(frequency)
	return &a, nil
}

// Get fetches an appointment by id.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// GetByPaymentIntent fetches the appointment a payment intent was created for.
func (r *PostgresRepository) GetByPaymentIntent(ctx context.Context, intentID string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE payment_intent_id = $1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select by intent failed: %w", err)
	}
	return appt, nil
}

// Create inserts a new appointment at version 1.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	query := `
		INSERT INTO appointments (
			client_id, professional_id, horse_ids, date, duration_minutes,
			location, is_periodic, frequency, end_date, price_cents,
			commission_cents, payment_status, payment_method, payment_intent_id,
			invoice_url, status, created_by, has_alternative,
			original_appointment_id, notes, reminder_sent, report_sent, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, 1)
		RETURNING id, version, created_at, updated_at
	`
	out := appt.Clone()
	if err := r.pool.QueryRow(ctx, query,
		appt.ClientID,
		appt.ProfessionalID,
		appt.HorseIDs,
		appt.Date,
		appt.DurationMinutes,
		appt.Location,
		appt.IsPeriodic,
		string(appt.Frequency),
		appt.EndDate,
		appt.PriceCents,
		appt.CommissionCents,
		string(appt.PaymentStatus),
		appt.PaymentMethod,
		appt.PaymentIntentID,
		appt.InvoiceURL,
		string(appt.Status),
		string(appt.CreatedBy),
		appt.HasAlternative,
		appt.OriginalAppointmentID,
		appt.Notes,
		appt.ReminderSent,
		appt.ReportSent,
	).Scan(&out.ID, &out.Version, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}
	return out, nil
}

const updateAppointmentSQL = `
	UPDATE appointments SET
		date = $1, duration_minutes = $2, location = $3, is_periodic = $4,
		frequency = $5, end_date = $6, price_cents = $7, commission_cents = $8,
		payment_status = $9, payment_method = $10, payment_intent_id = $11,
		invoice_url = $12, status = $13, has_alternative = $14, notes = $15,
		reminder_sent = $16, report_sent = $17, version = version + 1,
		updated_at = now()
	WHERE id = $18 AND version = $19
	RETURNING version, updated_at
`

// Update writes mutable fields using a compare-and-swap on the version the
// caller read. Party and horse identity are immutable by construction: the
// statement never touches them.
func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) (*Appointment, error) {
	out := appt.Clone()
	err := r.pool.QueryRow(ctx, updateAppointmentSQL,
		appt.Date,
		appt.DurationMinutes,
		appt.Location,
		appt.IsPeriodic,
		string(appt.Frequency),
		appt.EndDate,
		appt.PriceCents,
		appt.CommissionCents,
		string(appt.PaymentStatus),
		appt.PaymentMethod,
		appt.PaymentIntentID,
		appt.InvoiceURL,
		string(appt.Status),
		appt.HasAlternative,
		appt.Notes,
		appt.ReminderSent,
		appt.ReportSent,
		appt.ID,
		appt.Version,
	).Scan(&out.Version, &out.UpdatedAt)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: update failed: %w", err)
	}
	// Distinguish a stale version from a missing row.
	var exists int
	if scanErr := r.pool.QueryRow(ctx, `SELECT 1 FROM appointments WHERE id = $1`, appt.ID).Scan(&exists); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: conflict check failed: %w", scanErr)
	}
	return nil, ErrConflict
}

// CreateAlternative marks the source and inserts the proposal in a single
// transaction; a CAS failure on the source aborts the whole operation.
func (r *PostgresRepository) CreateAlternative(ctx context.Context, source *Appointment, proposal *Appointment) (*Appointment, *Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("appointments: begin alternative tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updatedSource := source.Clone()
	err = tx.QueryRow(ctx, updateAppointmentSQL,
		source.Date,
		source.DurationMinutes,
		source.Location,
		source.IsPeriodic,
		string(source.Frequency),
		source.EndDate,
		source.PriceCents,
		source.CommissionCents,
		string(source.PaymentStatus),
		source.PaymentMethod,
		source.PaymentIntentID,
		source.InvoiceURL,
		string(source.Status),
		source.HasAlternative,
		source.Notes,
		source.ReminderSent,
		source.ReportSent,
		source.ID,
		source.Version,
	).Scan(&updatedSource.Version, &updatedSource.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrConflict
		}
		return nil, nil, fmt.Errorf("appointments: flag source failed: %w", err)
	}

	insertQuery := `
		INSERT INTO appointments (
			client_id, professional_id, horse_ids, date, duration_minutes,
			location, is_periodic, frequency, end_date, price_cents,
			commission_cents, payment_status, payment_method, payment_intent_id,
			invoice_url, status, created_by, has_alternative,
			original_appointment_id, notes, reminder_sent, report_sent, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, 1)
		RETURNING id, version, created_at, updated_at
	`
	createdProposal := proposal.Clone()
	if err := tx.QueryRow(ctx, insertQuery,
		proposal.ClientID,
		proposal.ProfessionalID,
		proposal.HorseIDs,
		proposal.Date,
		proposal.DurationMinutes,
		proposal.Location,
		proposal.IsPeriodic,
		string(proposal.Frequency),
		proposal.EndDate,
		proposal.PriceCents,
		proposal.CommissionCents,
		string(proposal.PaymentStatus),
		proposal.PaymentMethod,
		proposal.PaymentIntentID,
		proposal.InvoiceURL,
		string(proposal.Status),
		string(proposal.CreatedBy),
		proposal.HasAlternative,
		proposal.OriginalAppointmentID,
		proposal.Notes,
		proposal.ReminderSent,
		proposal.ReportSent,
	).Scan(&createdProposal.ID, &createdProposal.Version, &createdProposal.CreatedAt, &createdProposal.UpdatedAt); err != nil {
		return nil, nil, fmt.Errorf("appointments: insert proposal failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("appointments: commit alternative: %w", err)
	}
	return updatedSource, createdProposal, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

// ListByClient returns every appointment where the user is the client.
func (r *PostgresRepository) ListByClient(ctx context.Context, clientID int64) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE client_id = $1 ORDER BY date`
	return r.list(ctx, query, clientID)
}

// ListByProfessional returns every appointment where the user is the professional.
func (r *PostgresRepository) ListByProfessional(ctx context.Context, professionalID int64) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE professional_id = $1 ORDER BY date`
	return r.list(ctx, query, professionalID)
}

// ListByHorse returns every appointment referencing the horse.
func (r *PostgresRepository) ListByHorse(ctx context.Context, horseID int64) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE $1 = ANY(horse_ids) ORDER BY date`
	return r.list(ctx, query, horseID)
}
