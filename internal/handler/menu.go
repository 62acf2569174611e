package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MenuHandler serves the read-only catalog view the customization
// screen needs: a menu item with its ingredients and replacement
// groups.
type MenuHandler struct {
	catalog menu.Catalog
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(catalog menu.Catalog) *MenuHandler {
	return &MenuHandler{catalog: catalog}
}

// RegisterRoutes registers menu endpoints on the given Chi router.
// Expected to be mounted at /menu-items
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
}

// --- Response types ---

type menuItemResponse struct {
	ID          uuid.UUID                  `json:"id"`
	Name        string                     `json:"name"`
	BasePrice   string                     `json:"base_price"`
	IsCombo     bool                       `json:"is_combo"`
	Ingredients []ingredientResponse       `json:"ingredients"`
	Groups      []replacementGroupResponse `json:"replacement_groups"`
}

type ingredientResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	IsRemovable bool      `json:"is_removable"`
	ExtraPrice  string    `json:"extra_price"`
}

type replacementGroupResponse struct {
	ID      uuid.UUID                   `json:"id"`
	Name    string                      `json:"name"`
	Options []replacementOptionResponse `json:"options"`
}

type replacementOptionResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	PriceDifference string    `json:"price_difference"`
	IsDefault       bool      `json:"is_default"`
}

// --- Handlers ---

// Get returns a menu item with everything the customization screen
// renders.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	item, err := h.catalog.GetMenuItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: get menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	ingredients, err := h.catalog.ListIngredients(r.Context(), itemID)
	if err != nil {
		log.Printf("ERROR: list ingredients: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	groups, err := h.catalog.ListReplacementGroups(r.Context(), itemID)
	if err != nil {
		log.Printf("ERROR: list replacement groups: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := menuItemResponse{
		ID:          item.ID,
		Name:        item.Name,
		BasePrice:   item.BasePrice.StringFixed(2),
		IsCombo:     item.IsCombo,
		Ingredients: make([]ingredientResponse, 0, len(ingredients)),
		Groups:      make([]replacementGroupResponse, 0, len(groups)),
	}
	for _, ing := range ingredients {
		resp.Ingredients = append(resp.Ingredients, ingredientResponse{
			ID:          ing.ID,
			Name:        ing.Name,
			IsRemovable: ing.IsRemovable,
			ExtraPrice:  ing.ExtraPrice.StringFixed(2),
		})
	}
	for _, g := range groups {
		group := replacementGroupResponse{
			ID:      g.ID,
			Name:    g.Name,
			Options: make([]replacementOptionResponse, 0, len(g.Options)),
		}
		for _, opt := range g.Options {
			group.Options = append(group.Options, replacementOptionResponse{
				ID:              opt.ID,
				Name:            opt.Name,
				PriceDifference: opt.PriceDifference.StringFixed(2),
				IsDefault:       opt.IsDefault,
			})
		}
		resp.Groups = append(resp.Groups, group)
	}
	writeJSON(w, http.StatusOK, resp)
}
