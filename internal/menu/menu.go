package menu

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is a sellable menu item.
type Item struct {
	ID        uuid.UUID
	Name      string
	BasePrice decimal.Decimal
	IsCombo   bool
}

// Ingredient is one ingredient link on a menu item. Removing an
// ingredient never changes the price; marking it "extra" adds
// ExtraPrice once. ExtraPrice zero means the ingredient cannot be
// ordered as extra.
type Ingredient struct {
	ID          uuid.UUID
	ItemID      uuid.UUID
	Name        string
	IsRemovable bool
	ExtraPrice  decimal.Decimal
}

// ReplacementOption is one choice in a replacement group.
// PriceDifference is signed; the group's default option always has
// difference zero in effect (selecting it equals no selection).
type ReplacementOption struct {
	ID              uuid.UUID
	Name            string
	PriceDifference decimal.Decimal
	IsDefault       bool
}

// ReplacementGroup is a named set of mutually-exclusive substitute
// choices for a slot on a menu item, with exactly one default.
type ReplacementGroup struct {
	ID      uuid.UUID
	ItemID  uuid.UUID
	Name    string
	Options []ReplacementOption
}

// DefaultOption returns the group's default option.
func (g ReplacementGroup) DefaultOption() (ReplacementOption, bool) {
	for _, opt := range g.Options {
		if opt.IsDefault {
			return opt, true
		}
	}
	return ReplacementOption{}, false
}

// Option looks up an option in the group by id.
func (g ReplacementGroup) Option(id uuid.UUID) (ReplacementOption, bool) {
	for _, opt := range g.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return ReplacementOption{}, false
}

// Catalog is the read-only menu lookup consumed by the pricing core.
// Satisfied by *store.Store; narrow interface for testability.
type Catalog interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (Item, error)
	ListIngredients(ctx context.Context, itemID uuid.UUID) ([]Ingredient, error)
	ListReplacementGroups(ctx context.Context, itemID uuid.UUID) ([]ReplacementGroup, error)
}
