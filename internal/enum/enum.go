// Package enum holds the string constants persisted in CHECK-constrained
// columns. Values must match the database schema exactly.
package enum

const (
	PaymentStatusPaid    = "PAID"
	PaymentStatusPending = "PENDING"
)

const (
	OrderTypeDineIn     = "DINE_IN"
	OrderTypeTakeaway   = "TAKEAWAY"
	OrderTypeSelfPickup = "SELF_PICKUP"
	OrderTypeDelivery   = "DELIVERY"
)

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCard     = "CARD"
	PaymentMethodBoth     = "BOTH"
	PaymentMethodPayLater = "PAY_LATER"
)

const (
	TaxTypePercentage = "PERCENTAGE"
	TaxTypeFixed      = "FIXED"
)

const (
	TaxApplyBeforeDiscount = "BEFORE_DISCOUNT"
	TaxApplyAfterDiscount  = "AFTER_DISCOUNT"
)

// Branch pricing configuration.

const (
	PricingModeInclusive = "INCLUSIVE"
	PricingModeExclusive = "EXCLUSIVE"
)

const (
	RoundingNone   = "NONE"
	RoundingNickel = "0.05"
	RoundingDime   = "0.10"
	RoundingWhole  = "WHOLE"
)
