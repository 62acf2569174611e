package tax

import (
	"errors"
	"sort"

	"github.com/fashraf/posmain-api/internal/enum"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors returned when validating branch tax configuration. Invalid
// rule shapes are rejected here, at configuration time; Compose assumes
// validated input.
var (
	ErrInvalidTaxType      = errors.New("invalid tax_type")
	ErrInvalidApplyOn      = errors.New("invalid apply_on")
	ErrNegativeTaxValue    = errors.New("tax value must be >= 0")
	ErrInvalidPricingMode  = errors.New("invalid pricing_mode")
	ErrInvalidRoundingRule = errors.New("invalid rounding_rule")
)

// Rule is one branch-level tax rule. Value is a rate out of 100 for
// PERCENTAGE rules and an absolute amount for FIXED rules.
type Rule struct {
	ID        uuid.UUID
	BranchID  uuid.UUID
	Name      string
	Type      string
	Value     decimal.Decimal
	ApplyOn   string
	IsActive  bool
	SortOrder int32
}

// ValidateRule rejects rules of invalid shape.
func ValidateRule(r Rule) error {
	switch r.Type {
	case enum.TaxTypePercentage, enum.TaxTypeFixed:
	default:
		return ErrInvalidTaxType
	}
	switch r.ApplyOn {
	case enum.TaxApplyBeforeDiscount, enum.TaxApplyAfterDiscount:
	default:
		return ErrInvalidApplyOn
	}
	if r.Value.IsNegative() {
		return ErrNegativeTaxValue
	}
	return nil
}

// ValidatePricing rejects invalid branch pricing configuration.
func ValidatePricing(pricingMode, roundingRule string) error {
	switch pricingMode {
	case enum.PricingModeInclusive, enum.PricingModeExclusive:
	default:
		return ErrInvalidPricingMode
	}
	switch roundingRule {
	case enum.RoundingNone, enum.RoundingNickel, enum.RoundingDime, enum.RoundingWhole:
	default:
		return ErrInvalidRoundingRule
	}
	return nil
}

// Result is the composed tax and rounded grand total.
type Result struct {
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// Compose evaluates the active rules in ascending sort order (ties keep
// insertion order) against the subtotal and discount. Stacking is
// additive: each rule is computed against its own declared base, never
// against another rule's output. Under INCLUSIVE pricing the tax is
// reported but not added to the total; rounding is applied once, to the
// final total.
func Compose(subtotal, discount decimal.Decimal, rules []Rule, pricingMode, roundingRule string) Result {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SortOrder < ordered[j].SortOrder
	})

	discounted := subtotal.Sub(discount)
	if discounted.IsNegative() {
		discounted = decimal.Zero
	}

	taxAmount := decimal.Zero
	for _, rule := range ordered {
		if !rule.IsActive {
			continue
		}
		base := subtotal
		if rule.ApplyOn == enum.TaxApplyAfterDiscount {
			base = discounted
		}
		if rule.Type == enum.TaxTypePercentage {
			taxAmount = taxAmount.Add(base.Mul(rule.Value).Div(decimal.NewFromInt(100)))
		} else {
			taxAmount = taxAmount.Add(rule.Value)
		}
	}

	total := discounted
	if pricingMode == enum.PricingModeExclusive {
		total = total.Add(taxAmount)
	}

	return Result{
		TaxAmount: taxAmount,
		Total:     round(total, roundingRule),
	}
}

// round snaps the total to the branch rounding increment, half-up.
// Intermediate tax contributions are never rounded.
func round(total decimal.Decimal, roundingRule string) decimal.Decimal {
	switch roundingRule {
	case enum.RoundingNickel:
		return roundToIncrement(total, decimal.NewFromFloat(0.05))
	case enum.RoundingDime:
		return roundToIncrement(total, decimal.NewFromFloat(0.10))
	case enum.RoundingWhole:
		return total.Round(0)
	}
	return total
}

func roundToIncrement(total, increment decimal.Decimal) decimal.Decimal {
	return total.Div(increment).Round(0).Mul(increment)
}
