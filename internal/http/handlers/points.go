package handlers

import (
	"net/http"
	"strconv"
	"time"

	"media-orchestrator/internal/domain"
)

type txView struct {
	ID           string    `json:"id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balanceAfter"`
	Type         string    `json:"type"`
	RefType      string    `json:"refType,omitempty"`
	RefID        string    `json:"refId,omitempty"`
	Remark       string    `json:"remark,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PointsBalance returns the caller's current balance.
func (a *App) PointsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]int64{"balance": balance})
}

// PointsTransactions lists the caller's most recent ledger rows.
func (a *App) PointsTransactions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := a.Ledger.Transactions(r.Context(), userID, limit)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load transactions")
		return
	}
	items := make([]txView, 0, len(txs))
	for _, tx := range txs {
		items = append(items, viewOfTx(tx))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func viewOfTx(tx domain.PointTransaction) txView {
	return txView{
		ID:           tx.ID,
		Delta:        tx.Delta,
		BalanceAfter: tx.BalanceAfter,
		Type:         string(tx.Type),
		RefType:      string(tx.RefType),
		RefID:        tx.RefID,
		Remark:       tx.Remark,
		CreatedAt:    tx.CreatedAt,
	}
}
