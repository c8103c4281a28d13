package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"media-orchestrator/internal/domain"
	"media-orchestrator/internal/ledger"
)

// LedgerStorePG implements ledger.Store on PostgreSQL. Atomicity comes from a
// real transaction plus SELECT ... FOR UPDATE on the account row, so two
// concurrent spends for the same user serialize at the database.
type LedgerStorePG struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new ledger store backed by PostgreSQL.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStorePG {
	return &LedgerStorePG{pool: pool}
}

// InTx runs fn inside one database transaction. Any error rolls back every
// write fn performed.
func (s *LedgerStorePG) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTxPG{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Account fetches one account row without locking it.
func (s *LedgerStorePG) Account(ctx context.Context, userID string) (*domain.PointAccount, error) {
	query := `
SELECT user_id, balance, frozen_balance, updated_at
FROM point_accounts
WHERE user_id = $1;
`
	return scanAccount(s.pool.QueryRow(ctx, query, userID))
}

// ListTransactions returns the most recent ledger rows for a user.
func (s *LedgerStorePG) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error) {
	query := `
SELECT id, user_id, delta, balance_after, type, ref_type, ref_id, remark, metadata, created_at
FROM point_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;
`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.PointTransaction
	for rows.Next() {
		var tx domain.PointTransaction
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Delta,
			&tx.BalanceAfter,
			&tx.Type,
			&tx.RefType,
			&tx.RefID,
			&tx.Remark,
			&tx.Metadata,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// ledgerTxPG implements ledger.Tx over one pgx transaction.
type ledgerTxPG struct {
	tx pgx.Tx
}

// AccountForUpdate locks the user's account row for the rest of the
// transaction, creating a zero-balance account on first use.
func (t *ledgerTxPG) AccountForUpdate(ctx context.Context, userID string) (*domain.PointAccount, error) {
	insert := `
INSERT INTO point_accounts (user_id, balance, frozen_balance)
VALUES ($1, 0, 0)
ON CONFLICT (user_id) DO NOTHING;
`
	if _, err := t.tx.Exec(ctx, insert, userID); err != nil {
		return nil, err
	}
	query := `
SELECT user_id, balance, frozen_balance, updated_at
FROM point_accounts
WHERE user_id = $1
FOR UPDATE;
`
	return scanAccount(t.tx.QueryRow(ctx, query, userID))
}

// FindByRef returns the transaction matching (userID, type, refID).
func (t *ledgerTxPG) FindByRef(ctx context.Context, userID string, txType domain.PointTxType, refID string) (*domain.PointTransaction, error) {
	query := `
SELECT id, user_id, delta, balance_after, type, ref_type, ref_id, remark, metadata, created_at
FROM point_transactions
WHERE user_id = $1 AND type = $2 AND ref_id = $3
LIMIT 1;
`
	var tx domain.PointTransaction
	if err := t.tx.QueryRow(ctx, query, userID, txType, refID).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Delta,
		&tx.BalanceAfter,
		&tx.Type,
		&tx.RefType,
		&tx.RefID,
		&tx.Remark,
		&tx.Metadata,
		&tx.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// Insert appends one ledger row. The partial unique index on
// (user_id, type, ref_id) backstops the in-transaction duplicate check.
func (t *ledgerTxPG) Insert(ctx context.Context, tx *domain.PointTransaction) error {
	query := `
INSERT INTO point_transactions (id, user_id, delta, balance_after, type, ref_type, ref_id, remark, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := t.tx.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Delta,
		tx.BalanceAfter,
		tx.Type,
		tx.RefType,
		tx.RefID,
		tx.Remark,
		nullableBytes(tx.Metadata),
		tx.CreatedAt,
	)
	return err
}

// SetBalance stores the balance derived from the appended row.
func (t *ledgerTxPG) SetBalance(ctx context.Context, userID string, balance int64) error {
	query := `
UPDATE point_accounts
SET balance = $2,
    updated_at = NOW()
WHERE user_id = $1;
`
	_, err := t.tx.Exec(ctx, query, userID, balance)
	return err
}

func scanAccount(row pgx.Row) (*domain.PointAccount, error) {
	var acct domain.PointAccount
	if err := row.Scan(
		&acct.UserID,
		&acct.Balance,
		&acct.FrozenBalance,
		&acct.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &acct, nil
}
