package ledger

import (
	"context"

	"media-orchestrator/internal/domain"
)

// Tx exposes the per-account operations available inside one atomic ledger
// unit. Implementations must make AccountForUpdate exclusive per account so
// two concurrent spends for the same user cannot interleave.
type Tx interface {
	// AccountForUpdate returns the user's account, creating a zero-balance
	// account on first use, and locks it for the rest of the transaction.
	AccountForUpdate(ctx context.Context, userID string) (*domain.PointAccount, error)
	// FindByRef returns the transaction matching (userID, type, refID), or
	// domain.ErrNotFound.
	FindByRef(ctx context.Context, userID string, txType domain.PointTxType, refID string) (*domain.PointTransaction, error)
	// Insert appends one transaction row. Rows are never updated or deleted.
	Insert(ctx context.Context, tx *domain.PointTransaction) error
	// SetBalance stores the account balance derived from the appended row.
	SetBalance(ctx context.Context, userID string, balance int64) error
}

// Store is the persistence boundary of the points ledger.
type Store interface {
	// InTx runs fn as a single atomic read-check-write unit. A returned error
	// rolls back every write performed inside fn.
	InTx(ctx context.Context, fn func(Tx) error) error
	Account(ctx context.Context, userID string) (*domain.PointAccount, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error)
}
