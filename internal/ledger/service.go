package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-orchestrator/internal/domain"
)

// Ref ties a transaction to the billable event it meters. The ID doubles as
// the idempotency key: at most one transaction per (user, type, ref id) is
// ever written.
type Ref struct {
	Type domain.RefType
	ID   string
}

// Service implements the points ledger: one balance per user plus an
// append-only transaction log.
type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Add credits the user's account and returns the new balance. When a ref is
// given and a transaction with the same (user, type, ref id) already exists,
// nothing is written and the current balance is returned.
func (s *Service) Add(ctx context.Context, userID string, amount int64, txType domain.PointTxType, ref *Ref, remark string, metadata []byte) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: add amount must be positive, got %d", amount)
	}
	var balance int64
	err := s.store.InTx(ctx, func(tx Tx) error {
		acct, err := tx.AccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if ref != nil {
			if dup, err := s.duplicate(ctx, tx, userID, txType, ref.ID); err != nil {
				return err
			} else if dup {
				balance = acct.Balance
				return nil
			}
		}
		balance = acct.Balance + amount
		if err := s.append(ctx, tx, userID, amount, balance, txType, ref, remark, metadata); err != nil {
			return err
		}
		return tx.SetBalance(ctx, userID, balance)
	})
	return balance, err
}

// Spend debits the user's account as one atomic read-check-decrement-append
// unit. If the balance would go negative it fails with
// domain.ErrInsufficientPoints and writes nothing. A duplicate ref makes the
// call a no-op returning the current balance.
func (s *Service) Spend(ctx context.Context, userID string, amount int64, txType domain.PointTxType, ref *Ref, remark string, metadata []byte) (int64, error) {
	balance, _, err := s.spend(ctx, userID, amount, txType, ref, remark, metadata)
	return balance, err
}

// ChargeOnce debits the user for a metered event identified by refID. The
// second and any later call for the same (user, type, refID) charges nothing
// and reports zero newly-charged points, which makes repeated webhook delivery
// for the same job financially safe.
func (s *Service) ChargeOnce(ctx context.Context, userID string, amount int64, txType domain.PointTxType, refID, remark string, metadata []byte) (charged, balance int64, err error) {
	if refID == "" {
		return 0, 0, fmt.Errorf("ledger: charge requires a ref id")
	}
	ref := &Ref{Type: domain.RefTypeJob, ID: refID}
	balance, charged, err = s.spend(ctx, userID, amount, txType, ref, remark, metadata)
	return charged, balance, err
}

func (s *Service) spend(ctx context.Context, userID string, amount int64, txType domain.PointTxType, ref *Ref, remark string, metadata []byte) (balance, charged int64, err error) {
	if amount <= 0 {
		return 0, 0, fmt.Errorf("ledger: spend amount must be positive, got %d", amount)
	}
	err = s.store.InTx(ctx, func(tx Tx) error {
		acct, err := tx.AccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if ref != nil {
			if dup, err := s.duplicate(ctx, tx, userID, txType, ref.ID); err != nil {
				return err
			} else if dup {
				balance, charged = acct.Balance, 0
				return nil
			}
		}
		if acct.Balance-amount < 0 {
			return fmt.Errorf("ledger: balance %d cannot cover %d: %w", acct.Balance, amount, domain.ErrInsufficientPoints)
		}
		balance = acct.Balance - amount
		charged = amount
		if err := s.append(ctx, tx, userID, -amount, balance, txType, ref, remark, metadata); err != nil {
			return err
		}
		return tx.SetBalance(ctx, userID, balance)
	})
	return balance, charged, err
}

// RefundByRef reverses the charge recorded under (userID, origType, refID) by
// appending a distinct refund transaction that references the same refID. The
// original row is never edited. Refunding an unknown or already-refunded ref
// is a no-op returning zero.
func (s *Service) RefundByRef(ctx context.Context, userID string, origType domain.PointTxType, refID, remark string) (int64, error) {
	if refID == "" {
		return 0, fmt.Errorf("ledger: refund requires a ref id")
	}
	var refunded int64
	err := s.store.InTx(ctx, func(tx Tx) error {
		acct, err := tx.AccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		orig, err := tx.FindByRef(ctx, userID, origType, refID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if dup, err := s.duplicate(ctx, tx, userID, domain.TxTypeRefund, refID); err != nil {
			return err
		} else if dup {
			return nil
		}
		refunded = -orig.Delta
		if refunded <= 0 {
			return fmt.Errorf("ledger: transaction %s is not a charge", orig.ID)
		}
		balance := acct.Balance + refunded
		ref := &Ref{Type: orig.RefType, ID: refID}
		if err := s.append(ctx, tx, userID, refunded, balance, domain.TxTypeRefund, ref, remark, nil); err != nil {
			return err
		}
		return tx.SetBalance(ctx, userID, balance)
	})
	return refunded, err
}

// Balance returns the user's current balance; an unknown user has zero.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	acct, err := s.store.Account(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acct.Balance, nil
}

// Transactions lists the most recent ledger rows for a user.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]domain.PointTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

func (s *Service) duplicate(ctx context.Context, tx Tx, userID string, txType domain.PointTxType, refID string) (bool, error) {
	if refID == "" {
		return false, nil
	}
	_, err := tx.FindByRef(ctx, userID, txType, refID)
	if err == nil {
		s.logger.Debug().
			Str("user_id", userID).
			Str("type", string(txType)).
			Str("ref_id", refID).
			Msg("ledger: duplicate ref, skipping write")
		return true, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *Service) append(ctx context.Context, tx Tx, userID string, delta, balanceAfter int64, txType domain.PointTxType, ref *Ref, remark string, metadata []byte) error {
	row := &domain.PointTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        delta,
		BalanceAfter: balanceAfter,
		Type:         txType,
		Remark:       remark,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
	if ref != nil {
		row.RefType = ref.Type
		row.RefID = ref.ID
	}
	return tx.Insert(ctx, row)
}
