package pricing

import (
	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Breakdown is the live price of one unit of a customized menu item.
// Total = Base + ExtrasTotal + ReplacementDiff; removals never alter
// the price.
type Breakdown struct {
	Base            decimal.Decimal
	ExtrasTotal     decimal.Decimal
	ReplacementDiff decimal.Decimal
	Total           decimal.Decimal
}

// Price computes the breakdown for an item with the given selection.
// Pure function of its inputs; callers recompute on every toggle
// instead of patching a running total, so the displayed price can
// never drift from the selection.
func Price(item menu.Item, ingredients []menu.Ingredient, groups []menu.ReplacementGroup, sel *Selection) Breakdown {
	byID := make(map[uuid.UUID]menu.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}

	extrasTotal := decimal.Zero
	for _, id := range sel.Extras() {
		ing, ok := byID[id]
		if !ok {
			continue
		}
		// ExtraPrice zero marks an ingredient that cannot be ordered
		// as extra; it contributes nothing even if toggled.
		extrasTotal = extrasTotal.Add(ing.ExtraPrice)
	}

	replacementDiff := decimal.Zero
	for _, group := range groups {
		optID, ok := sel.Replacement(group.ID)
		if !ok {
			continue
		}
		opt, ok := group.Option(optID)
		if !ok || opt.IsDefault {
			continue
		}
		replacementDiff = replacementDiff.Add(opt.PriceDifference)
	}

	return Breakdown{
		Base:            item.BasePrice,
		ExtrasTotal:     extrasTotal,
		ReplacementDiff: replacementDiff,
		Total:           item.BasePrice.Add(extrasTotal).Add(replacementDiff),
	}
}
