package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fashraf/posmain-api/internal/branch"
	"github.com/fashraf/posmain-api/internal/tax"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TaxRuleStore defines the database methods needed by tax rule
// handlers. Satisfied by *store.Store; narrow interface for
// testability.
type TaxRuleStore interface {
	GetBranch(ctx context.Context, id uuid.UUID) (branch.Branch, error)
	ListTaxRules(ctx context.Context, branchID uuid.UUID) ([]tax.Rule, error)
	CreateTaxRule(ctx context.Context, r tax.Rule) (tax.Rule, error)
	UpdateTaxRule(ctx context.Context, r tax.Rule) (int64, error)
	DeleteTaxRule(ctx context.Context, branchID, ruleID uuid.UUID) (int64, error)
}

// TaxRuleHandler handles branch tax rule configuration endpoints.
// Invalid rule shapes are rejected here, so checkout can assume
// validated configuration.
type TaxRuleHandler struct {
	store TaxRuleStore
}

// NewTaxRuleHandler creates a new TaxRuleHandler.
func NewTaxRuleHandler(store TaxRuleStore) *TaxRuleHandler {
	return &TaxRuleHandler{store: store}
}

// RegisterRoutes registers tax rule endpoints on the given Chi router.
// Expected to be mounted at /branches/{bid}/tax-rules
func (h *TaxRuleHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{rid}", h.Update)
	r.Delete("/{rid}", h.Delete)
}

// --- Request / Response types ---

type taxRuleRequest struct {
	TaxName   string `json:"tax_name"`
	TaxType   string `json:"tax_type"`
	Value     string `json:"value"`
	ApplyOn   string `json:"apply_on"`
	IsActive  bool   `json:"is_active"`
	SortOrder int32  `json:"sort_order"`
}

type taxRuleResponse struct {
	ID        uuid.UUID `json:"id"`
	BranchID  uuid.UUID `json:"branch_id"`
	TaxName   string    `json:"tax_name"`
	TaxType   string    `json:"tax_type"`
	Value     string    `json:"value"`
	ApplyOn   string    `json:"apply_on"`
	IsActive  bool      `json:"is_active"`
	SortOrder int32     `json:"sort_order"`
}

func toTaxRuleResponse(r tax.Rule) taxRuleResponse {
	return taxRuleResponse{
		ID:        r.ID,
		BranchID:  r.BranchID,
		TaxName:   r.Name,
		TaxType:   r.Type,
		Value:     r.Value.StringFixed(2),
		ApplyOn:   r.ApplyOn,
		IsActive:  r.IsActive,
		SortOrder: r.SortOrder,
	}
}

// --- Helpers ---

func (h *TaxRuleHandler) verifyBranch(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	branchID, err := uuid.Parse(chi.URLParam(r, "bid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid branch ID"})
		return uuid.Nil, false
	}
	if _, err := h.store.GetBranch(r.Context(), branchID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "branch not found"})
			return uuid.Nil, false
		}
		log.Printf("ERROR: verify branch: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return uuid.Nil, false
	}
	return branchID, true
}

// parseRule validates the request into a tax.Rule. The spec for rule
// shapes is enforced at configuration time, not at checkout.
func parseRule(branchID uuid.UUID, req taxRuleRequest) (tax.Rule, string) {
	if req.TaxName == "" {
		return tax.Rule{}, "tax_name is required"
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		return tax.Rule{}, "invalid value"
	}
	rule := tax.Rule{
		BranchID:  branchID,
		Name:      req.TaxName,
		Type:      req.TaxType,
		Value:     value,
		ApplyOn:   req.ApplyOn,
		IsActive:  req.IsActive,
		SortOrder: req.SortOrder,
	}
	if err := tax.ValidateRule(rule); err != nil {
		return tax.Rule{}, err.Error()
	}
	return rule, ""
}

// --- Handlers ---

// List returns all tax rules of a branch, active or not.
func (h *TaxRuleHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.verifyBranch(w, r)
	if !ok {
		return
	}

	rules, err := h.store.ListTaxRules(r.Context(), branchID)
	if err != nil {
		log.Printf("ERROR: list tax rules: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]taxRuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, toTaxRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a tax rule to a branch.
func (h *TaxRuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.verifyBranch(w, r)
	if !ok {
		return
	}

	var req taxRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rule, errMsg := parseRule(branchID, req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}

	created, err := h.store.CreateTaxRule(r.Context(), rule)
	if err != nil {
		log.Printf("ERROR: create tax rule: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusCreated, toTaxRuleResponse(created))
}

// Update replaces a tax rule's configuration.
func (h *TaxRuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.verifyBranch(w, r)
	if !ok {
		return
	}

	ruleID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rule ID"})
		return
	}

	var req taxRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	rule, errMsg := parseRule(branchID, req)
	if errMsg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errMsg})
		return
	}
	rule.ID = ruleID

	affected, err := h.store.UpdateTaxRule(r.Context(), rule)
	if err != nil {
		log.Printf("ERROR: update tax rule: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if affected == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tax rule not found"})
		return
	}
	writeJSON(w, http.StatusOK, toTaxRuleResponse(rule))
}

// Delete removes a tax rule.
func (h *TaxRuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	branchID, ok := h.verifyBranch(w, r)
	if !ok {
		return
	}

	ruleID, err := uuid.Parse(chi.URLParam(r, "rid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rule ID"})
		return
	}

	affected, err := h.store.DeleteTaxRule(r.Context(), branchID, ruleID)
	if err != nil {
		log.Printf("ERROR: delete tax rule: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if affected == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tax rule not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
