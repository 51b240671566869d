package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/equicare/equicare-platform/internal/identity"
)

var apptColumns = []string{
	"id", "client_id", "professional_id", "horse_ids", "date", "duration_minutes",
	"location", "is_periodic", "frequency", "end_date", "price_cents", "commission_cents",
	"payment_status", "payment_method", "payment_intent_id", "invoice_url", "status",
	"created_by", "has_alternative", "original_appointment_id", "notes",
	"reminder_sent", "report_sent", "version", "created_at", "updated_at",
}

func apptRow(id int64, status string, version int64) *pgxmock.Rows {
	now := time.Now().UTC()
	price := int64(12000)
	return pgxmock.NewRows(apptColumns).AddRow(
		id, int64(10), int64(20), []int64{7}, now, nil,
		"Stable A", false, "", nil, &price, int64(600),
		"pending", "", "", "", status,
		"client", false, nil, "",
		false, false, version, now, now,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPostgresRepositoryWithPool(mock)
}

func TestPostgresGet(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("SELECT").WithArgs(int64(1)).WillReturnRows(apptRow(1, "requested", 3))

	appt, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if appt.ID != 1 || appt.Status != StatusRequested || appt.Version != 3 {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
	if appt.CreatedBy != identity.RoleClient {
		t.Fatalf("created_by = %s", appt.CreatedBy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGetNormalizesLegacyPending(t *testing.T) {
	mock, repo := newMockRepo(t)

	// Rows written before the status rename still say "pending".
	mock.ExpectQuery("SELECT").WithArgs(int64(2)).WillReturnRows(apptRow(2, "pending", 1))

	appt, err := repo.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if appt.Status != StatusRequested {
		t.Fatalf("status = %s, want %s", appt.Status, StatusRequested)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGetNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("SELECT").WithArgs(int64(404)).WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Get(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreate(t *testing.T) {
	mock, repo := newMockRepo(t)

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(
			int64(10), int64(20), []int64{7}, pgxmock.AnyArg(), pgxmock.AnyArg(),
			"Stable A", false, "", pgxmock.AnyArg(), pgxmock.AnyArg(),
			int64(0), "pending", "", "", "", "requested", "client", false,
			pgxmock.AnyArg(), "", false, false,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow(int64(5), int64(1), now, now))

	created, err := repo.Create(context.Background(), &Appointment{
		ClientID:       10,
		ProfessionalID: 20,
		HorseIDs:       []int64{7},
		Date:           now,
		Location:       "Stable A",
		PaymentStatus:  PaymentPending,
		Status:         StatusRequested,
		CreatedBy:      identity.RoleClient,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID != 5 || created.Version != 1 {
		t.Fatalf("created = %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateConflict(t *testing.T) {
	mock, repo := newMockRepo(t)

	// CAS misses, probe finds the row: stale version.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), int64(1), int64(2),
		).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM appointments").WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	_, err := repo.Update(context.Background(), &Appointment{ID: 1, Version: 2, Status: StatusConfirmed})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresUpdateMissingRow(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), int64(9), int64(1),
		).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT 1 FROM appointments").WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Update(context.Background(), &Appointment{ID: 9, Version: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateAlternativeRollsBackOnConflict(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), int64(1), int64(1),
		).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	source := &Appointment{ID: 1, Version: 1, HasAlternative: true}
	proposal := &Appointment{ClientID: 10, ProfessionalID: 20, HorseIDs: []int64{7}}
	_, _, err := repo.CreateAlternative(context.Background(), source, proposal)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresListByHorse(t *testing.T) {
	mock, repo := newMockRepo(t)

	mock.ExpectQuery("SELECT").WithArgs(int64(7)).WillReturnRows(apptRow(1, "confirmed", 2))

	appts, err := repo.ListByHorse(context.Background(), 7)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(appts) != 1 || appts[0].Status != StatusConfirmed {
		t.Fatalf("appts = %+v", appts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
