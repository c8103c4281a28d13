package ledger

import (
	"context"
	"sync"
	"time"

	"media-orchestrator/internal/domain"
)

// MemoryStore is an in-process Store used by tests and local development.
// InTx serializes all ledger work behind one mutex, which trivially satisfies
// the per-account atomicity requirement.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.PointAccount
	log      []domain.PointTransaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*domain.PointAccount)}
}

type memoryTx struct {
	store   *MemoryStore
	writes  []domain.PointTransaction
	balance map[string]int64
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, balance: make(map[string]int64)}
	if err := fn(tx); err != nil {
		return err
	}
	// Commit staged writes only after fn succeeded.
	now := time.Now().UTC()
	m.log = append(m.log, tx.writes...)
	for userID, balance := range tx.balance {
		acct := m.accounts[userID]
		acct.Balance = balance
		acct.UpdatedAt = now
	}
	return nil
}

func (t *memoryTx) AccountForUpdate(_ context.Context, userID string) (*domain.PointAccount, error) {
	acct, ok := t.store.accounts[userID]
	if !ok {
		acct = &domain.PointAccount{UserID: userID, UpdatedAt: time.Now().UTC()}
		t.store.accounts[userID] = acct
	}
	copied := *acct
	return &copied, nil
}

func (t *memoryTx) FindByRef(_ context.Context, userID string, txType domain.PointTxType, refID string) (*domain.PointTransaction, error) {
	for i := range t.writes {
		row := t.writes[i]
		if row.UserID == userID && row.Type == txType && row.RefID == refID {
			return &row, nil
		}
	}
	for i := range t.store.log {
		row := t.store.log[i]
		if row.UserID == userID && row.Type == txType && row.RefID == refID {
			return &row, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *memoryTx) Insert(_ context.Context, tx *domain.PointTransaction) error {
	t.writes = append(t.writes, *tx)
	return nil
}

func (t *memoryTx) SetBalance(_ context.Context, userID string, balance int64) error {
	t.balance[userID] = balance
	return nil
}

func (m *MemoryStore) Account(ctx context.Context, userID string) (*domain.PointAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *acct
	return &copied, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PointTransaction
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		if m.log[i].UserID == userID {
			out = append(out, m.log[i])
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
