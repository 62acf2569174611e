package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fashraf/posmain-api/internal/checkout"
	"github.com/fashraf/posmain-api/internal/enum"
	"github.com/fashraf/posmain-api/internal/order"
	"github.com/fashraf/posmain-api/internal/store"
	"github.com/fashraf/posmain-api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SettlementStore defines the database methods needed to settle a
// pay-later order.
type SettlementStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (store.Order, error)
	SettleOrder(ctx context.Context, arg store.SettleOrderParams) (int64, error)
}

// NewSettlementStore creates a SettlementStore from a transaction.
type NewSettlementStore func(tx pgx.Tx) SettlementStore

// SettlementHandler collects payment on PENDING (pay-later) orders.
type SettlementHandler struct {
	pool     order.TxBeginner
	newStore NewSettlementStore
	hub      *ws.Hub
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(pool order.TxBeginner, newStore NewSettlementStore, hub *ws.Hub) *SettlementHandler {
	return &SettlementHandler{pool: pool, newStore: newStore, hub: hub}
}

// --- Request / Response types ---

type settleRequest struct {
	PaymentMethod  string `json:"payment_method"`
	TenderedAmount string `json:"tendered_amount"`
	CashAmount     string `json:"cash_amount"`
}

type settleResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	TotalAmount   string    `json:"total_amount"`
	PaymentStatus string    `json:"payment_status"`
	PaymentMethod string    `json:"payment_method"`
	ChangeAmount  string    `json:"change_amount"`
}

// --- Handler ---

// Settle handles POST /branches/{bid}/orders/{id}/settle: collects
// payment on a pay-later order and flips it to PAID. The row is locked
// inside a transaction so two counters cannot settle the same order.
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	// A settlement is a payment being collected now, so PAY_LATER is
	// not a valid method here.
	switch req.PaymentMethod {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodBoth:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment_method"})
		return
	}

	tendered, err := parseOptionalAmount(req.TenderedAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tendered_amount"})
		return
	}
	cashAmount, err := parseOptionalAmount(req.CashAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cash_amount"})
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		log.Printf("ERROR: begin tx for settle: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	defer tx.Rollback(r.Context()) //nolint:errcheck

	txStore := h.newStore(tx)

	o, err := txStore.GetOrderForUpdate(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for settle: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if o.BranchID != branchID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}
	if o.PaymentStatus != enum.PaymentStatusPending {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already paid"})
		return
	}

	change := decimal.Zero
	switch req.PaymentMethod {
	case enum.PaymentMethodCash:
		if tendered.LessThan(o.TotalAmount) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": checkout.ErrInsufficientTendered.Error()})
			return
		}
		change = tendered.Sub(o.TotalAmount)
	case enum.PaymentMethodBoth:
		if cashAmount.LessThanOrEqual(decimal.Zero) || cashAmount.GreaterThan(o.TotalAmount) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": checkout.ErrInvalidSplitAmount.Error()})
			return
		}
		tendered = decimal.Zero
	default:
		tendered = decimal.Zero
	}

	affected, err := txStore.SettleOrder(r.Context(), store.SettleOrderParams{
		OrderID:        orderID,
		PaymentMethod:  req.PaymentMethod,
		TenderedAmount: tendered,
		ChangeAmount:   change,
	})
	if err != nil {
		log.Printf("ERROR: settle order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if affected == 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is already paid"})
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		log.Printf("ERROR: commit settle: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := settleResponse{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		PaymentStatus: enum.PaymentStatusPaid,
		PaymentMethod: req.PaymentMethod,
		ChangeAmount:  change.StringFixed(2),
	}
	h.broadcastOrderSettled(branchID, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (h *SettlementHandler) broadcastOrderSettled(branchID uuid.UUID, resp settleResponse) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		log.Printf("ERROR: marshal order.settled payload: %v", err)
		return
	}
	h.hub.BroadcastToBranch(branchID, ws.Event{
		Type:    ws.EventOrderSettled,
		Payload: payload,
	})
}
