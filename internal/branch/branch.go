package branch

import (
	"context"

	"github.com/fashraf/posmain-api/internal/tax"
	"github.com/google/uuid"
)

// Branch is the pricing-relevant configuration of one branch.
type Branch struct {
	ID             uuid.UUID
	Name           string
	Currency       string
	CurrencySymbol string
	PricingMode    string
	RoundingRule   string
}

// Config is the branch configuration lookup consumed by the checkout
// core. Satisfied by *store.Store; narrow interface for testability.
type Config interface {
	GetBranch(ctx context.Context, id uuid.UUID) (Branch, error)
	// ListActiveTaxRules returns the branch's active rules ordered by
	// sort_order, ties broken by insertion order.
	ListActiveTaxRules(ctx context.Context, branchID uuid.UUID) ([]tax.Rule, error)
}
