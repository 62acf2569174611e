package order

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fashraf/posmain-api/internal/branch"
	"github.com/fashraf/posmain-api/internal/cart"
	"github.com/fashraf/posmain-api/internal/checkout"
	"github.com/fashraf/posmain-api/internal/enum"
	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/fashraf/posmain-api/internal/tax"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the submission service.
var (
	ErrSubmissionInFlight = errors.New("an order submission is already in progress")
	ErrInvalidDiscount    = errors.New("discount must be >= 0")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to persist orders.
// Satisfied by *store.Store (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error)
	CreateOrderHeader(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error)
	CreateOrderLine(ctx context.Context, arg CreateLineParams) (uuid.UUID, error)
}

// NewOrderStore creates an OrderStore from a transaction, so both
// writes of a submission share one atomic unit.
type NewOrderStore func(tx pgx.Tx) OrderStore

// CreateHeaderParams is the order header row.
type CreateHeaderParams struct {
	BranchID        uuid.UUID
	OrderNumber     string
	OrderType       string
	CustomerName    string
	CustomerMobile  string
	DeliveryAddress string
	Subtotal        decimal.Decimal
	VatRate         decimal.Decimal
	VatAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	PaymentStatus   string
	PaymentMethod   string // empty means NULL (PAY_LATER orders)
	TenderedAmount  decimal.Decimal
	ChangeAmount    decimal.Decimal
	TakenBy         uuid.UUID
	Notes           string
}

// CreateLineParams is one order line row, carrying the resolved
// customization and its fingerprint for audit and reprint.
type CreateLineParams struct {
	OrderID           uuid.UUID
	MenuItemID        uuid.UUID
	ItemName          string
	Quantity          int32
	UnitPrice         decimal.Decimal
	Customization     LineCustomization
	CustomizationHash string
	LineTotal         decimal.Decimal
}

// LineCustomization is the persisted, human-readable form of a cart
// line's selection.
type LineCustomization struct {
	Extras       []CustomizationEntry `json:"extras"`
	Removals     []CustomizationEntry `json:"removals"`
	Replacements []ReplacementEntry   `json:"replacements,omitempty"`
}

// CustomizationEntry names one extra or removed ingredient.
type CustomizationEntry struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ReplacementEntry names one chosen replacement option.
type ReplacementEntry struct {
	GroupID    uuid.UUID `json:"group_id"`
	GroupName  string    `json:"group_name"`
	OptionID   uuid.UUID `json:"option_id"`
	OptionName string    `json:"option_name"`
}

// Confirmation is the result of a successful submission.
type Confirmation struct {
	OrderID       uuid.UUID
	OrderNumber   string
	Subtotal      decimal.Decimal
	VatAmount     decimal.Decimal
	TotalAmount   decimal.Decimal
	PaymentStatus string
	ChangeAmount  decimal.Decimal
}

// Submission is everything beyond the cart needed to place an order.
type Submission struct {
	Branch   branch.Branch
	TaxRules []tax.Rule
	State    checkout.State
	Discount decimal.Decimal
	TakenBy  uuid.UUID
}

// Service assembles and persists orders. A single in-flight guard
// prevents a second submit while one is outstanding; the guard is
// released on both success and failure.
type Service struct {
	pool     TxBeginner
	newStore NewOrderStore
	catalog  menu.Catalog
	inFlight atomic.Bool
}

// NewService creates a submission service.
func NewService(pool TxBeginner, newStore NewOrderStore, catalog menu.Catalog) *Service {
	return &Service{pool: pool, newStore: newStore, catalog: catalog}
}

// Submit validates the checkout state against the cart totals, builds
// the order header plus one line per cart line, and writes both inside
// a single transaction: the order and its lines are created together or
// not at all.
func (s *Service) Submit(ctx context.Context, c *cart.Cart, sub Submission) (*Confirmation, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer s.inFlight.Store(false)

	if sub.Discount.IsNegative() {
		return nil, ErrInvalidDiscount
	}

	subtotal := c.Subtotal()
	composed := tax.Compose(subtotal, sub.Discount, sub.TaxRules, sub.Branch.PricingMode, sub.Branch.RoundingRule)

	if err := checkout.Validate(sub.State, c.IsEmpty(), composed.Total); err != nil {
		return nil, err
	}

	lines, err := s.buildLines(ctx, c)
	if err != nil {
		return nil, err
	}

	header := buildHeader(sub, subtotal, composed)

	// Retry on order_number unique conflicts: concurrent submissions at
	// the same branch can draw the same MAX-based sequence value.
	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		conf, err := s.submitTx(ctx, header, lines)
		if err == nil {
			return conf, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// buildHeader assembles the header row from the validated state.
// PAY_LATER maps to a PENDING payment status with a NULL method; every
// other method is collected synchronously and recorded as PAID.
func buildHeader(sub Submission, subtotal decimal.Decimal, composed tax.Result) CreateHeaderParams {
	paymentStatus := enum.PaymentStatusPaid
	paymentMethod := sub.State.PaymentMethod
	if sub.State.PaymentMethod == enum.PaymentMethodPayLater {
		paymentStatus = enum.PaymentStatusPending
		paymentMethod = ""
	}

	tendered := decimal.Zero
	change := decimal.Zero
	if sub.State.PaymentMethod == enum.PaymentMethodCash {
		tendered = sub.State.TenderedAmount
		change = sub.State.Change(composed.Total)
	}

	return CreateHeaderParams{
		BranchID:        sub.Branch.ID,
		OrderType:       sub.State.OrderType,
		CustomerName:    sub.State.CustomerName,
		CustomerMobile:  sub.State.CustomerMobile,
		DeliveryAddress: sub.State.DeliveryAddress,
		Subtotal:        subtotal,
		VatRate:         percentageRateSum(sub.TaxRules),
		VatAmount:       composed.TaxAmount,
		TotalAmount:     composed.Total,
		PaymentStatus:   paymentStatus,
		PaymentMethod:   paymentMethod,
		TenderedAmount:  tendered,
		ChangeAmount:    change,
		TakenBy:         sub.TakenBy,
		Notes:           sub.State.Notes,
	}
}

// percentageRateSum is the combined percentage rate recorded as
// vat_rate on the header, for reporting.
func percentageRateSum(rules []tax.Rule) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rules {
		if r.IsActive && r.Type == enum.TaxTypePercentage {
			sum = sum.Add(r.Value)
		}
	}
	return sum
}

// buildLines resolves each cart line's selection into named
// customization entries via the catalog.
func (s *Service) buildLines(ctx context.Context, c *cart.Cart) ([]CreateLineParams, error) {
	var lines []CreateLineParams
	for i, line := range c.Lines() {
		ingredients, err := s.catalog.ListIngredients(ctx, line.ItemID)
		if err != nil {
			return nil, fmt.Errorf("line[%d]: list ingredients: %w", i, err)
		}
		groups, err := s.catalog.ListReplacementGroups(ctx, line.ItemID)
		if err != nil {
			return nil, fmt.Errorf("line[%d]: list replacement groups: %w", i, err)
		}

		lines = append(lines, CreateLineParams{
			MenuItemID:        line.ItemID,
			ItemName:          line.ItemName,
			Quantity:          line.Quantity,
			UnitPrice:         line.UnitPrice,
			Customization:     resolveCustomization(line, ingredients, groups),
			CustomizationHash: line.Fingerprint,
			LineTotal:         line.LineTotal(),
		})
	}
	return lines, nil
}

func resolveCustomization(line *cart.Line, ingredients []menu.Ingredient, groups []menu.ReplacementGroup) LineCustomization {
	names := make(map[uuid.UUID]string, len(ingredients))
	for _, ing := range ingredients {
		names[ing.ID] = ing.Name
	}

	cust := LineCustomization{
		Extras:   make([]CustomizationEntry, 0),
		Removals: make([]CustomizationEntry, 0),
	}
	for _, id := range line.Selection.Extras() {
		cust.Extras = append(cust.Extras, CustomizationEntry{ID: id, Name: names[id]})
	}
	for _, id := range line.Selection.Removals() {
		cust.Removals = append(cust.Removals, CustomizationEntry{ID: id, Name: names[id]})
	}
	for _, group := range groups {
		optID, ok := line.Selection.Replacement(group.ID)
		if !ok {
			continue
		}
		opt, ok := group.Option(optID)
		if !ok {
			continue
		}
		cust.Replacements = append(cust.Replacements, ReplacementEntry{
			GroupID:    group.ID,
			GroupName:  group.Name,
			OptionID:   opt.ID,
			OptionName: opt.Name,
		})
	}
	return cust
}

// submitTx writes the header and its lines in one transaction.
func (s *Service) submitTx(ctx context.Context, header CreateHeaderParams, lines []CreateLineParams) (*Confirmation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx, header.BranchID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	header.OrderNumber = fmt.Sprintf("PM-%03d", nextNum)

	orderID, err := store.CreateOrderHeader(ctx, header)
	if err != nil {
		return nil, fmt.Errorf("create order header: %w", err)
	}

	for i, line := range lines {
		line.OrderID = orderID
		if _, err := store.CreateOrderLine(ctx, line); err != nil {
			return nil, fmt.Errorf("create order line[%d]: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &Confirmation{
		OrderID:       orderID,
		OrderNumber:   header.OrderNumber,
		Subtotal:      header.Subtotal,
		VatAmount:     header.VatAmount,
		TotalAmount:   header.TotalAmount,
		PaymentStatus: header.PaymentStatus,
		ChangeAmount:  header.ChangeAmount,
	}, nil
}

// isOrderNumberConflict checks for a unique constraint violation on the
// per-branch order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_branch_id_order_number_key"
	}
	return false
}
