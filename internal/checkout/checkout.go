package checkout

import (
	"errors"
	"strings"

	"github.com/fashraf/posmain-api/internal/enum"
	"github.com/shopspring/decimal"
)

// Validation errors. Each carries the user-facing hint shown next to
// the blocked submit action; none of them is fatal.
var (
	ErrInvalidOrderType     = errors.New("invalid order_type")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrPayLaterNotAllowed   = errors.New("pay later is not available for takeaway or self pickup orders")
	ErrEmptyCart            = errors.New("add at least one item before submitting the order")
	ErrDeliveryAddress      = errors.New("a delivery address is required for delivery orders")
	ErrInsufficientTendered = errors.New("cash received is less than the amount due")
	ErrInvalidSplitAmount   = errors.New("cash portion must be greater than zero and not exceed the amount due")
)

// State is one checkout session's form state. Created fresh per
// checkout; thrown away on submit or cancel.
type State struct {
	OrderType       string
	PaymentMethod   string
	TenderedAmount  decimal.Decimal
	CashAmount      decimal.Decimal
	DeliveryAddress string
	CustomerName    string
	CustomerMobile  string
	Notes           string
}

// PayLaterAllowed reports whether PAY_LATER is selectable for the order
// type. Walk-away order types must settle at the counter.
func PayLaterAllowed(orderType string) bool {
	return orderType != enum.OrderTypeTakeaway && orderType != enum.OrderTypeSelfPickup
}

// SetOrderType switches the order type. Switching into a type where
// PAY_LATER is disabled while it is the active method force-resets the
// payment method to CASH.
func (s *State) SetOrderType(orderType string) {
	s.OrderType = orderType
	if s.PaymentMethod == enum.PaymentMethodPayLater && !PayLaterAllowed(orderType) {
		s.PaymentMethod = enum.PaymentMethodCash
	}
}

// Change is the cash to hand back: tendered minus total. Only
// meaningful for CASH; may be negative while the state is invalid.
func (s *State) Change(total decimal.Decimal) decimal.Decimal {
	return s.TenderedAmount.Sub(total)
}

// CardAmount is the card portion of a split payment: total minus the
// cash portion.
func (s *State) CardAmount(total decimal.Decimal) decimal.Decimal {
	return total.Sub(s.CashAmount)
}

// Validate is the submit predicate: a pure function of the current
// state and the cart totals, re-evaluated on every field change. It
// returns the first blocking error, or nil when submission may proceed.
func Validate(s State, cartEmpty bool, total decimal.Decimal) error {
	if err := validateOrderType(s.OrderType); err != nil {
		return err
	}
	if err := validatePaymentMethod(s.PaymentMethod); err != nil {
		return err
	}
	if s.PaymentMethod == enum.PaymentMethodPayLater && !PayLaterAllowed(s.OrderType) {
		return ErrPayLaterNotAllowed
	}
	if cartEmpty {
		return ErrEmptyCart
	}
	if s.OrderType == enum.OrderTypeDelivery && strings.TrimSpace(s.DeliveryAddress) == "" {
		return ErrDeliveryAddress
	}
	switch s.PaymentMethod {
	case enum.PaymentMethodCash:
		if s.TenderedAmount.LessThan(total) {
			return ErrInsufficientTendered
		}
	case enum.PaymentMethodBoth:
		if s.CashAmount.LessThanOrEqual(decimal.Zero) || s.CashAmount.GreaterThan(total) {
			return ErrInvalidSplitAmount
		}
	}
	// CARD and PAY_LATER carry no numeric constraint.
	return nil
}

func validateOrderType(orderType string) error {
	switch orderType {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeaway,
		enum.OrderTypeSelfPickup, enum.OrderTypeDelivery:
		return nil
	}
	return ErrInvalidOrderType
}

func validatePaymentMethod(method string) error {
	switch method {
	case enum.PaymentMethodCash, enum.PaymentMethodCard,
		enum.PaymentMethodBoth, enum.PaymentMethodPayLater:
		return nil
	}
	return ErrInvalidPaymentMethod
}
