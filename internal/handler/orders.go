package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/fashraf/posmain-api/internal/branch"
	"github.com/fashraf/posmain-api/internal/cart"
	"github.com/fashraf/posmain-api/internal/checkout"
	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/fashraf/posmain-api/internal/order"
	"github.com/fashraf/posmain-api/internal/pricing"
	"github.com/fashraf/posmain-api/internal/store"
	"github.com/fashraf/posmain-api/internal/tax"
	"github.com/fashraf/posmain-api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderSubmitter defines the service method needed by the checkout
// endpoint. Satisfied by *order.Service; narrow interface for
// testability.
type OrderSubmitter interface {
	Submit(ctx context.Context, c *cart.Cart, sub order.Submission) (*order.Confirmation, error)
}

// OrderReader defines the database methods needed by order read
// handlers. Satisfied by *store.Store.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (store.Order, error)
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]store.OrderLine, error)
}

// OrderHandler handles checkout and order read endpoints.
type OrderHandler struct {
	submitter OrderSubmitter
	catalog   menu.Catalog
	branches  branch.Config
	reader    OrderReader
	hub       *ws.Hub
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(submitter OrderSubmitter, catalog menu.Catalog, branches branch.Config, reader OrderReader, hub *ws.Hub) *OrderHandler {
	return &OrderHandler{
		submitter: submitter,
		catalog:   catalog,
		branches:  branches,
		reader:    reader,
		hub:       hub,
	}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a branch-scoped subrouter: /branches/{bid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Checkout)
	r.Post("/quote", h.Quote)
	r.Get("/{id}", h.Get)
}

// --- Request / Response types ---

type checkoutRequest struct {
	OrderType       string             `json:"order_type"`
	PaymentMethod   string             `json:"payment_method"`
	TenderedAmount  string             `json:"tendered_amount"`
	CashAmount      string             `json:"cash_amount"`
	DeliveryAddress string             `json:"delivery_address"`
	CustomerName    string             `json:"customer_name"`
	CustomerMobile  string             `json:"customer_mobile"`
	Notes           string             `json:"notes"`
	Discount        string             `json:"discount"`
	TakenBy         string             `json:"taken_by"`
	Items           []checkoutItemRequest `json:"items"`
}

type checkoutItemRequest struct {
	MenuItemID   string               `json:"menu_item_id"`
	Quantity     int32                `json:"quantity"`
	Extras       []string             `json:"extras"`
	Removals     []string             `json:"removals"`
	Replacements []replacementRequest `json:"replacements"`
}

type replacementRequest struct {
	GroupID  string `json:"group_id"`
	OptionID string `json:"option_id"`
}

type confirmationResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	Subtotal      string    `json:"subtotal"`
	VatAmount     string    `json:"vat_amount"`
	TotalAmount   string    `json:"total_amount"`
	PaymentStatus string    `json:"payment_status"`
	ChangeAmount  string    `json:"change_amount"`
}

type quoteLineResponse struct {
	MenuItemID      uuid.UUID `json:"menu_item_id"`
	ItemName        string    `json:"item_name"`
	Quantity        int32     `json:"quantity"`
	BasePrice       string    `json:"base_price"`
	UnitPrice       string    `json:"unit_price"`
	LineTotal       string    `json:"line_total"`
	Fingerprint     string    `json:"fingerprint"`
}

type quoteResponse struct {
	Lines     []quoteLineResponse `json:"lines"`
	Subtotal  string              `json:"subtotal"`
	VatAmount string              `json:"vat_amount"`
	Total     string              `json:"total"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	BranchID        uuid.UUID           `json:"branch_id"`
	OrderNumber     string              `json:"order_number"`
	OrderType       string              `json:"order_type"`
	CustomerName    string              `json:"customer_name"`
	CustomerMobile  string              `json:"customer_mobile"`
	DeliveryAddress string              `json:"delivery_address,omitempty"`
	Subtotal        string              `json:"subtotal"`
	VatRate         string              `json:"vat_rate"`
	VatAmount       string              `json:"vat_amount"`
	TotalAmount     string              `json:"total_amount"`
	PaymentStatus   string              `json:"payment_status"`
	PaymentMethod   *string             `json:"payment_method"`
	TenderedAmount  string              `json:"tendered_amount"`
	ChangeAmount    string              `json:"change_amount"`
	TakenBy         uuid.UUID           `json:"taken_by"`
	Notes           string              `json:"notes"`
	CreatedAt       time.Time           `json:"created_at"`
	Lines           []orderLineResponse `json:"lines"`
}

type orderLineResponse struct {
	ID                uuid.UUID               `json:"id"`
	MenuItemID        uuid.UUID               `json:"menu_item_id"`
	ItemName          string                  `json:"item_name"`
	Quantity          int32                   `json:"quantity"`
	UnitPrice         string                  `json:"unit_price"`
	Customization     order.LineCustomization `json:"customization"`
	CustomizationHash string                  `json:"customization_hash"`
	LineTotal         string                  `json:"line_total"`
}

// --- Handlers ---

// Checkout handles POST /branches/{bid}/orders: prices the requested
// items, merges duplicate customizations, composes branch taxes,
// validates the payment state, and submits the order.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	takenBy, err := uuid.Parse(req.TakenBy)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid taken_by"})
		return
	}

	discount := decimal.Zero
	if req.Discount != "" {
		discount, err = decimal.NewFromString(req.Discount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount"})
			return
		}
	}

	b, rules, ok := h.loadBranch(w, r.Context(), branchID)
	if !ok {
		return
	}

	c, ok := h.buildCart(w, r.Context(), req.Items)
	if !ok {
		return
	}

	state := checkout.State{
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		CustomerName:    req.CustomerName,
		CustomerMobile:  req.CustomerMobile,
		Notes:           req.Notes,
	}
	state.SetOrderType(req.OrderType)
	state.TenderedAmount, err = parseOptionalAmount(req.TenderedAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tendered_amount"})
		return
	}
	state.CashAmount, err = parseOptionalAmount(req.CashAmount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cash_amount"})
		return
	}

	conf, err := h.submitter.Submit(r.Context(), c, order.Submission{
		Branch:   b,
		TaxRules: rules,
		State:    state,
		Discount: discount,
		TakenBy:  takenBy,
	})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	h.broadcastOrderCreated(b.ID, conf)

	writeJSON(w, http.StatusCreated, toConfirmationResponse(conf))
}

// Quote handles POST /branches/{bid}/orders/quote: the live price
// preview the customization screen re-requests on every toggle.
// Nothing is persisted.
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	discount := decimal.Zero
	if req.Discount != "" {
		discount, err = decimal.NewFromString(req.Discount)
		if err != nil || discount.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid discount"})
			return
		}
	}

	b, rules, ok := h.loadBranch(w, r.Context(), branchID)
	if !ok {
		return
	}

	c, ok := h.buildCart(w, r.Context(), req.Items)
	if !ok {
		return
	}

	subtotal := c.Subtotal()
	composed := tax.Compose(subtotal, discount, rules, b.PricingMode, b.RoundingRule)

	resp := quoteResponse{
		Lines:     make([]quoteLineResponse, 0, len(c.Lines())),
		Subtotal:  subtotal.StringFixed(2),
		VatAmount: composed.TaxAmount.StringFixed(2),
		Total:     composed.Total.StringFixed(2),
	}
	for _, line := range c.Lines() {
		resp.Lines = append(resp.Lines, quoteLineResponse{
			MenuItemID:  line.ItemID,
			ItemName:    line.ItemName,
			Quantity:    line.Quantity,
			BasePrice:   line.BasePrice.StringFixed(2),
			UnitPrice:   line.UnitPrice.StringFixed(2),
			LineTotal:   line.LineTotal().StringFixed(2),
			Fingerprint: line.Fingerprint,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /branches/{bid}/orders/{id}, for receipts and
// reprints.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	o, err := h.reader.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if o.BranchID != branchID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	lines, err := h.reader.ListOrderLines(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order lines: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o, lines))
}

// --- Helpers ---

func (h *OrderHandler) loadBranch(w http.ResponseWriter, ctx context.Context, branchID uuid.UUID) (branch.Branch, []tax.Rule, bool) {
	b, err := h.branches.GetBranch(ctx, branchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "branch not found"})
			return branch.Branch{}, nil, false
		}
		log.Printf("ERROR: get branch: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return branch.Branch{}, nil, false
	}

	rules, err := h.branches.ListActiveTaxRules(ctx, branchID)
	if err != nil {
		log.Printf("ERROR: list tax rules: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return branch.Branch{}, nil, false
	}
	return b, rules, true
}

// buildCart prices every requested item against the catalog and merges
// lines with identical customization fingerprints.
func (h *OrderHandler) buildCart(w http.ResponseWriter, ctx context.Context, items []checkoutItemRequest) (*cart.Cart, bool) {
	c := cart.New()
	for i, item := range items {
		itemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu_item_id"})
			return nil, false
		}

		menuItem, err := h.catalog.GetMenuItem(ctx, itemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
				return nil, false
			}
			log.Printf("ERROR: get menu item: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return nil, false
		}
		ingredients, err := h.catalog.ListIngredients(ctx, itemID)
		if err != nil {
			log.Printf("ERROR: list ingredients: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return nil, false
		}
		groups, err := h.catalog.ListReplacementGroups(ctx, itemID)
		if err != nil {
			log.Printf("ERROR: list replacement groups: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return nil, false
		}

		sel, errMsg := buildSelection(item, ingredients, groups)
		if errMsg != "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
			return nil, false
		}

		if _, err := c.AddOrMerge(menuItem, ingredients, groups, item.Quantity, sel); err != nil {
			log.Printf("items[%d]: %v", i, err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return nil, false
		}
	}
	return c, true
}

// buildSelection replays the customer's toggles through the selection
// state machine so the extras/removals disjointness invariant holds by
// construction.
func buildSelection(item checkoutItemRequest, ingredients []menu.Ingredient, groups []menu.ReplacementGroup) (*pricing.Selection, string) {
	byID := make(map[uuid.UUID]menu.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}
	groupByID := make(map[uuid.UUID]menu.ReplacementGroup, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}

	sel := pricing.NewSelection()
	for _, raw := range item.Removals {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, "invalid removal ingredient id"
		}
		ing, ok := byID[id]
		if !ok {
			return nil, "removal ingredient does not belong to item"
		}
		if !ing.IsRemovable {
			return nil, "ingredient is not removable"
		}
		sel.ToggleRemoved(ing)
	}
	for _, raw := range item.Extras {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, "invalid extra ingredient id"
		}
		if _, ok := byID[id]; !ok {
			return nil, "extra ingredient does not belong to item"
		}
		sel.ToggleExtra(id)
	}
	for _, rep := range item.Replacements {
		groupID, err := uuid.Parse(rep.GroupID)
		if err != nil {
			return nil, "invalid replacement group id"
		}
		optionID, err := uuid.Parse(rep.OptionID)
		if err != nil {
			return nil, "invalid replacement option id"
		}
		group, ok := groupByID[groupID]
		if !ok {
			return nil, "replacement group does not belong to item"
		}
		if _, ok := group.Option(optionID); !ok {
			return nil, "replacement option does not belong to group"
		}
		sel.SelectReplacement(group, optionID)
	}
	return sel, ""
}

func (h *OrderHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrDeliveryAddress),
		errors.Is(err, checkout.ErrInsufficientTendered),
		errors.Is(err, checkout.ErrInvalidSplitAmount),
		errors.Is(err, checkout.ErrPayLaterNotAllowed),
		errors.Is(err, checkout.ErrInvalidOrderType),
		errors.Is(err, checkout.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrInvalidDiscount):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, order.ErrSubmissionInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: submit order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "order submission failed, please try again"})
	}
}

func (h *OrderHandler) broadcastOrderCreated(branchID uuid.UUID, conf *order.Confirmation) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(toConfirmationResponse(conf))
	if err != nil {
		log.Printf("ERROR: marshal order.created payload: %v", err)
		return
	}
	h.hub.BroadcastToBranch(branchID, ws.Event{
		Type:    ws.EventOrderCreated,
		Payload: payload,
	})
}

func parseOptionalAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func toConfirmationResponse(conf *order.Confirmation) confirmationResponse {
	return confirmationResponse{
		OrderID:       conf.OrderID,
		OrderNumber:   conf.OrderNumber,
		Subtotal:      conf.Subtotal.StringFixed(2),
		VatAmount:     conf.VatAmount.StringFixed(2),
		TotalAmount:   conf.TotalAmount.StringFixed(2),
		PaymentStatus: conf.PaymentStatus,
		ChangeAmount:  conf.ChangeAmount.StringFixed(2),
	}
}

func toOrderResponse(o store.Order, lines []store.OrderLine) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		BranchID:        o.BranchID,
		OrderNumber:     o.OrderNumber,
		OrderType:       o.OrderType,
		CustomerName:    o.CustomerName,
		CustomerMobile:  o.CustomerMobile,
		DeliveryAddress: o.DeliveryAddress,
		Subtotal:        o.Subtotal.StringFixed(2),
		VatRate:         o.VatRate.StringFixed(2),
		VatAmount:       o.VatAmount.StringFixed(2),
		TotalAmount:     o.TotalAmount.StringFixed(2),
		PaymentStatus:   o.PaymentStatus,
		TenderedAmount:  o.TenderedAmount.StringFixed(2),
		ChangeAmount:    o.ChangeAmount.StringFixed(2),
		TakenBy:         o.TakenBy,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		Lines:           make([]orderLineResponse, 0, len(lines)),
	}
	if o.PaymentMethod != "" {
		method := o.PaymentMethod
		resp.PaymentMethod = &method
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, orderLineResponse{
			ID:                line.ID,
			MenuItemID:        line.MenuItemID,
			ItemName:          line.ItemName,
			Quantity:          line.Quantity,
			UnitPrice:         line.UnitPrice.StringFixed(2),
			Customization:     line.Customization,
			CustomizationHash: line.CustomizationHash,
			LineTotal:         line.LineTotal.StringFixed(2),
		})
	}
	return resp
}
