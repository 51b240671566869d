package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoAccount marks a professional without a connected payment account; the
// orchestrator falls back to the direct route.
var ErrNoAccount = errors.New("payments: no connected account")

// ConnectedAccount is a processor sub-account belonging to a professional.
// ChargesEnabled reflects the processor's verification state; only verified
// accounts qualify for the marketplace route.
type ConnectedAccount struct {
	ProfessionalID int64
	AccountID      string
	ChargesEnabled bool
}

// AccountResolver looks up the connected payment account for a professional.
type AccountResolver interface {
	Account(ctx context.Context, professionalID int64) (*ConnectedAccount, error)
}

// PostgresAccounts resolves connected accounts from the
// professional_payment_accounts table.
type PostgresAccounts struct {
	pool *pgxpool.Pool
}

func NewPostgresAccounts(pool *pgxpool.Pool) *PostgresAccounts {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresAccounts{pool: pool}
}

func (r *PostgresAccounts) Account(ctx context.Context, professionalID int64) (*ConnectedAccount, error) {
	const q = `SELECT professional_id, account_id, charges_enabled
		FROM professional_payment_accounts WHERE professional_id = $1`
	var acct ConnectedAccount
	err := r.pool.QueryRow(ctx, q, professionalID).Scan(&acct.ProfessionalID, &acct.AccountID, &acct.ChargesEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoAccount
		}
		return nil, fmt.Errorf("payments: account lookup: %w", err)
	}
	return &acct, nil
}

// InMemoryAccounts backs tests and single-binary development.
type InMemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[int64]ConnectedAccount
}

func NewInMemoryAccounts() *InMemoryAccounts {
	return &InMemoryAccounts{accounts: make(map[int64]ConnectedAccount)}
}

// Add registers a connected account for a professional.
func (r *InMemoryAccounts) Add(professionalID int64, accountID string, chargesEnabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[professionalID] = ConnectedAccount{
		ProfessionalID: professionalID,
		AccountID:      accountID,
		ChargesEnabled: chargesEnabled,
	}
}

func (r *InMemoryAccounts) Account(ctx context.Context, professionalID int64) (*ConnectedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[professionalID]
	if !ok {
		return nil, ErrNoAccount
	}
	out := acct
	return &out, nil
}

var _ AccountResolver = (*PostgresAccounts)(nil)
var _ AccountResolver = (*InMemoryAccounts)(nil)
