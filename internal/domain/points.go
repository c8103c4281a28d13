package domain

import "time"

// PointTxType classifies ledger transactions.
type PointTxType string

const (
	TxTypeGrant         PointTxType = "grant"
	TxTypeDownloadUsage PointTxType = "download_usage"
	TxTypeASRUsage      PointTxType = "asr_usage"
	TxTypeLLMUsage      PointTxType = "llm_usage"
	TxTypeRefund        PointTxType = "refund"
	TxTypeAdjustment    PointTxType = "adjustment"
)

// RefType identifies what a transaction's RefID points at.
type RefType string

const (
	RefTypeJob    RefType = "job"
	RefTypeManual RefType = "manual"
)

// PointAccount holds one user's balance. Invariant: Balance equals the sum of
// all PointTransaction deltas for the user, at all times.
type PointAccount struct {
	UserID        string
	Balance       int64
	FrozenBalance int64
	UpdatedAt     time.Time
}

// PointTransaction is one append-only ledger row. Rows are never mutated or
// deleted; RefID is the idempotency key for metered events (typically the
// jobId). BalanceAfter is an immutable point-in-time snapshot for audit.
type PointTransaction struct {
	ID           string
	UserID       string
	Delta        int64
	BalanceAfter int64
	Type         PointTxType
	RefType      RefType
	RefID        string
	Remark       string
	Metadata     []byte
	CreatedAt    time.Time
}
