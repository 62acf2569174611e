package order

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fashraf/posmain-api/internal/branch"
	"github.com/fashraf/posmain-api/internal/cart"
	"github.com/fashraf/posmain-api/internal/checkout"
	"github.com/fashraf/posmain-api/internal/enum"
	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/fashraf/posmain-api/internal/pricing"
	"github.com/fashraf/posmain-api/internal/tax"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return m.commitErr }
func (m *mockTx) Rollback(ctx context.Context) error        { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getNextOrderNumberFn func(ctx context.Context, branchID uuid.UUID) (int32, error)
	createOrderHeaderFn  func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error)
	createOrderLineFn    func(ctx context.Context, arg CreateLineParams) (uuid.UUID, error)
}

func (m *mockOrderStore) GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error) {
	return m.getNextOrderNumberFn(ctx, branchID)
}
func (m *mockOrderStore) CreateOrderHeader(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
	return m.createOrderHeaderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderLine(ctx context.Context, arg CreateLineParams) (uuid.UUID, error) {
	return m.createOrderLineFn(ctx, arg)
}

// mockCatalog implements menu.Catalog for name resolution.
type mockCatalog struct {
	ingredients map[uuid.UUID][]menu.Ingredient
	groups      map[uuid.UUID][]menu.ReplacementGroup
}

func (m *mockCatalog) GetMenuItem(ctx context.Context, id uuid.UUID) (menu.Item, error) {
	panic("not implemented")
}
func (m *mockCatalog) ListIngredients(ctx context.Context, itemID uuid.UUID) ([]menu.Ingredient, error) {
	return m.ingredients[itemID], nil
}
func (m *mockCatalog) ListReplacementGroups(ctx context.Context, itemID uuid.UUID) ([]menu.ReplacementGroup, error) {
	return m.groups[itemID], nil
}

// --- Test helpers ---

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testBranch() branch.Branch {
	return branch.Branch{
		ID:           uuid.New(),
		Name:         "Main Branch",
		Currency:     "AED",
		PricingMode:  enum.PricingModeExclusive,
		RoundingRule: enum.RoundingNone,
	}
}

func testVAT() []tax.Rule {
	return []tax.Rule{{
		Name:      "VAT",
		Type:      enum.TaxTypePercentage,
		Value:     d("5"),
		ApplyOn:   enum.TaxApplyBeforeDiscount,
		IsActive:  true,
		SortOrder: 1,
	}}
}

// testMenu is a burger with a priced removable ingredient and a bun
// replacement group.
func testMenu() (menu.Item, []menu.Ingredient, []menu.ReplacementGroup) {
	item := menu.Item{
		ID:        uuid.New(),
		Name:      "Classic Burger",
		BasePrice: d("15.00"),
	}
	ingredients := []menu.Ingredient{
		{ID: uuid.New(), ItemID: item.ID, Name: "Cheese", IsRemovable: true, ExtraPrice: d("2.00")},
		{ID: uuid.New(), ItemID: item.ID, Name: "Onions", IsRemovable: true, ExtraPrice: decimal.Zero},
	}
	groups := []menu.ReplacementGroup{{
		ID:     uuid.New(),
		ItemID: item.ID,
		Name:   "Bun",
		Options: []menu.ReplacementOption{
			{ID: uuid.New(), Name: "Sesame Bun", PriceDifference: decimal.Zero, IsDefault: true},
			{ID: uuid.New(), Name: "Brioche Bun", PriceDifference: d("1.50")},
		},
	}}
	return item, ingredients, groups
}

func catalogFor(item menu.Item, ingredients []menu.Ingredient, groups []menu.ReplacementGroup) *mockCatalog {
	return &mockCatalog{
		ingredients: map[uuid.UUID][]menu.Ingredient{item.ID: ingredients},
		groups:      map[uuid.UUID][]menu.ReplacementGroup{item.ID: groups},
	}
}

// defaultStore returns a mockOrderStore with sensible defaults.
// Individual tests override the functions they care about.
func defaultStore() *mockOrderStore {
	return &mockOrderStore{
		getNextOrderNumberFn: func(ctx context.Context, branchID uuid.UUID) (int32, error) {
			return 1, nil
		},
		createOrderHeaderFn: func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
			return uuid.New(), nil
		},
		createOrderLineFn: func(ctx context.Context, arg CreateLineParams) (uuid.UUID, error) {
			return uuid.New(), nil
		},
	}
}

func newTestService(store *mockOrderStore, catalog menu.Catalog) *Service {
	pool := &mockTxBeginner{tx: &mockTx{}}
	newStore := func(tx pgx.Tx) OrderStore { return store }
	return NewService(pool, newStore, catalog)
}

// cashSubmission pairs the test branch with a cash checkout state that
// comfortably covers the total.
func cashSubmission(b branch.Branch) Submission {
	return Submission{
		Branch:   b,
		TaxRules: testVAT(),
		State: checkout.State{
			OrderType:      enum.OrderTypeDineIn,
			PaymentMethod:  enum.PaymentMethodCash,
			TenderedAmount: d("100.00"),
		},
		Discount: decimal.Zero,
		TakenBy:  uuid.New(),
	}
}

func cartWith(t *testing.T, item menu.Item, ingredients []menu.Ingredient, groups []menu.ReplacementGroup, qty int32, sel *pricing.Selection) *cart.Cart {
	t.Helper()
	c := cart.New()
	if _, err := c.AddOrMerge(item, ingredients, groups, qty, sel); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	return c
}

// =====================
// Validation tests
// =====================

func TestSubmit_EmptyCart(t *testing.T) {
	item, ingredients, groups := testMenu()
	svc := newTestService(defaultStore(), catalogFor(item, ingredients, groups))

	_, err := svc.Submit(context.Background(), cart.New(), cashSubmission(testBranch()))
	if !errors.Is(err, checkout.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got: %v", err)
	}
}

func TestSubmit_NegativeDiscount(t *testing.T) {
	item, ingredients, groups := testMenu()
	svc := newTestService(defaultStore(), catalogFor(item, ingredients, groups))

	sub := cashSubmission(testBranch())
	sub.Discount = d("-5.00")

	c := cartWith(t, item, ingredients, groups, 1, nil)
	_, err := svc.Submit(context.Background(), c, sub)
	if !errors.Is(err, ErrInvalidDiscount) {
		t.Fatalf("expected ErrInvalidDiscount, got: %v", err)
	}
}

func TestSubmit_InsufficientTendered(t *testing.T) {
	item, ingredients, groups := testMenu()
	svc := newTestService(defaultStore(), catalogFor(item, ingredients, groups))

	sub := cashSubmission(testBranch())
	sub.State.TenderedAmount = d("10.00") // total is 15.75

	c := cartWith(t, item, ingredients, groups, 1, nil)
	_, err := svc.Submit(context.Background(), c, sub)
	if !errors.Is(err, checkout.ErrInsufficientTendered) {
		t.Fatalf("expected ErrInsufficientTendered, got: %v", err)
	}
}

func TestSubmit_PayLaterTakeawayBlocked(t *testing.T) {
	item, ingredients, groups := testMenu()
	svc := newTestService(defaultStore(), catalogFor(item, ingredients, groups))

	sub := cashSubmission(testBranch())
	sub.State.OrderType = enum.OrderTypeTakeaway
	sub.State.PaymentMethod = enum.PaymentMethodPayLater

	c := cartWith(t, item, ingredients, groups, 1, nil)
	_, err := svc.Submit(context.Background(), c, sub)
	if !errors.Is(err, checkout.ErrPayLaterNotAllowed) {
		t.Fatalf("expected ErrPayLaterNotAllowed, got: %v", err)
	}
}

// =====================
// Header assembly tests
// =====================

func TestSubmit_CashHeader(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	var captured CreateHeaderParams
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		captured = arg
		return uuid.New(), nil
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	b := testBranch()
	sub := cashSubmission(b)
	sub.State.TenderedAmount = d("20.00")

	c := cartWith(t, item, ingredients, groups, 1, nil)
	conf, err := svc.Submit(context.Background(), c, sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 15.00 + 5% VAT = 15.75
	if !captured.Subtotal.Equal(d("15.00")) {
		t.Errorf("subtotal: got %v, want 15.00", captured.Subtotal)
	}
	if !captured.VatRate.Equal(d("5")) {
		t.Errorf("vat_rate: got %v, want 5", captured.VatRate)
	}
	if !captured.VatAmount.Equal(d("0.75")) {
		t.Errorf("vat_amount: got %v, want 0.75", captured.VatAmount)
	}
	if !captured.TotalAmount.Equal(d("15.75")) {
		t.Errorf("total: got %v, want 15.75", captured.TotalAmount)
	}
	if captured.PaymentStatus != enum.PaymentStatusPaid {
		t.Errorf("payment_status: got %v, want PAID", captured.PaymentStatus)
	}
	if captured.PaymentMethod != enum.PaymentMethodCash {
		t.Errorf("payment_method: got %v, want CASH", captured.PaymentMethod)
	}
	if !captured.TenderedAmount.Equal(d("20.00")) {
		t.Errorf("tendered: got %v, want 20.00", captured.TenderedAmount)
	}
	if !captured.ChangeAmount.Equal(d("4.25")) {
		t.Errorf("change: got %v, want 4.25", captured.ChangeAmount)
	}
	if captured.OrderNumber != "PM-001" {
		t.Errorf("order number: got %v, want PM-001", captured.OrderNumber)
	}
	if !conf.ChangeAmount.Equal(d("4.25")) {
		t.Errorf("confirmation change: got %v, want 4.25", conf.ChangeAmount)
	}
}

func TestSubmit_PayLaterIsPendingWithNoMethod(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	var captured CreateHeaderParams
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		captured = arg
		return uuid.New(), nil
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	sub := cashSubmission(testBranch())
	sub.State.PaymentMethod = enum.PaymentMethodPayLater
	sub.State.TenderedAmount = decimal.Zero

	c := cartWith(t, item, ingredients, groups, 1, nil)
	conf, err := svc.Submit(context.Background(), c, sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.PaymentStatus != enum.PaymentStatusPending {
		t.Errorf("payment_status: got %v, want PENDING", captured.PaymentStatus)
	}
	if captured.PaymentMethod != "" {
		t.Errorf("payment_method should be empty (NULL), got %v", captured.PaymentMethod)
	}
	if conf.PaymentStatus != enum.PaymentStatusPending {
		t.Errorf("confirmation payment_status: got %v, want PENDING", conf.PaymentStatus)
	}
}

func TestSubmit_CardDoesNotRecordTender(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	var captured CreateHeaderParams
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		captured = arg
		return uuid.New(), nil
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	sub := cashSubmission(testBranch())
	sub.State.PaymentMethod = enum.PaymentMethodCard
	sub.State.TenderedAmount = d("999.00") // stale cash field, must be ignored

	c := cartWith(t, item, ingredients, groups, 1, nil)
	if _, err := svc.Submit(context.Background(), c, sub); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !captured.TenderedAmount.Equal(decimal.Zero) {
		t.Errorf("tendered should be zero for card, got %v", captured.TenderedAmount)
	}
	if !captured.ChangeAmount.Equal(decimal.Zero) {
		t.Errorf("change should be zero for card, got %v", captured.ChangeAmount)
	}
}

// =====================
// Line assembly tests
// =====================

func TestSubmit_LineCarriesCustomization(t *testing.T) {
	item, ingredients, groups := testMenu()
	cheese := ingredients[0]
	onions := ingredients[1]
	brioche := groups[0].Options[1]

	store := defaultStore()
	var captured CreateLineParams
	store.createOrderLineFn = func(ctx context.Context, arg CreateLineParams) (uuid.UUID, error) {
		captured = arg
		return uuid.New(), nil
	}

	sel := pricing.NewSelection()
	sel.ToggleExtra(cheese.ID)
	sel.ToggleRemoved(onions)
	sel.SelectReplacement(groups[0], brioche.ID)

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	c := cartWith(t, item, ingredients, groups, 2, sel)

	if _, err := svc.Submit(context.Background(), c, cashSubmission(testBranch())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.OrderID == uuid.Nil {
		t.Error("line should be bound to the created order")
	}
	if captured.ItemName != "Classic Burger" {
		t.Errorf("item name: got %v", captured.ItemName)
	}
	// 15.00 + 2.00 cheese + 1.50 brioche = 18.50
	if !captured.UnitPrice.Equal(d("18.50")) {
		t.Errorf("unit price: got %v, want 18.50", captured.UnitPrice)
	}
	if !captured.LineTotal.Equal(d("37.00")) {
		t.Errorf("line total: got %v, want 37.00", captured.LineTotal)
	}
	if captured.CustomizationHash != pricing.Fingerprint(sel) {
		t.Error("line should carry the selection fingerprint")
	}
	if len(captured.Customization.Extras) != 1 || captured.Customization.Extras[0].Name != "Cheese" {
		t.Errorf("extras: got %+v", captured.Customization.Extras)
	}
	if len(captured.Customization.Removals) != 1 || captured.Customization.Removals[0].Name != "Onions" {
		t.Errorf("removals: got %+v", captured.Customization.Removals)
	}
	if len(captured.Customization.Replacements) != 1 {
		t.Fatalf("replacements: got %+v", captured.Customization.Replacements)
	}
	rep := captured.Customization.Replacements[0]
	if rep.GroupName != "Bun" || rep.OptionName != "Brioche Bun" {
		t.Errorf("replacement: got %+v", rep)
	}
}

// =====================
// Order number generation tests
// =====================

func TestSubmit_SubsequentOrderNumber(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()
	store.getNextOrderNumberFn = func(ctx context.Context, branchID uuid.UUID) (int32, error) {
		return 42, nil
	}

	var captured CreateHeaderParams
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		captured = arg
		return uuid.New(), nil
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	c := cartWith(t, item, ingredients, groups, 1, nil)
	conf, err := svc.Submit(context.Background(), c, cashSubmission(testBranch()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.OrderNumber != "PM-042" {
		t.Errorf("order number: got %v, want PM-042", captured.OrderNumber)
	}
	if conf.OrderNumber != "PM-042" {
		t.Errorf("confirmation order number: got %v, want PM-042", conf.OrderNumber)
	}
}

// =====================
// Retry on unique constraint violation
// =====================

func TestSubmit_RetryOnUniqueViolation(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	createCallCount := 0
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		createCallCount++
		if createCallCount == 1 {
			return uuid.Nil, &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "orders_branch_id_order_number_key",
			}
		}
		return uuid.New(), nil
	}

	orderNumCallCount := 0
	store.getNextOrderNumberFn = func(ctx context.Context, branchID uuid.UUID) (int32, error) {
		orderNumCallCount++
		return int32(orderNumCallCount), nil
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	c := cartWith(t, item, ingredients, groups, 1, nil)
	conf, err := svc.Submit(context.Background(), c, cashSubmission(testBranch()))
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if conf == nil {
		t.Fatal("expected confirmation, got nil")
	}
	if createCallCount != 2 {
		t.Errorf("expected 2 CreateOrderHeader calls (1 fail + 1 success), got %d", createCallCount)
	}
	if orderNumCallCount != 2 {
		t.Errorf("expected 2 GetNextOrderNumber calls, got %d", orderNumCallCount)
	}
}

func TestSubmit_RetryExhausted(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		return uuid.Nil, &pgconn.PgError{
			Code:           "23505",
			ConstraintName: "orders_branch_id_order_number_key",
		}
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	c := cartWith(t, item, ingredients, groups, 1, nil)
	_, err := svc.Submit(context.Background(), c, cashSubmission(testBranch()))
	if err == nil {
		t.Fatal("expected error after exhausting retries, got nil")
	}
	if !strings.Contains(err.Error(), "create order header") {
		t.Errorf("expected 'create order header' in error message, got: %v", err)
	}
}

func TestSubmit_NonUniqueErrorNotRetried(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	callCount := 0
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		callCount++
		return uuid.Nil, errors.New("some other DB error")
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	c := cartWith(t, item, ingredients, groups, 1, nil)
	_, err := svc.Submit(context.Background(), c, cashSubmission(testBranch()))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("non-unique errors should not retry: expected 1 call, got %d", callCount)
	}
}

// =====================
// In-flight guard tests
// =====================

func TestSubmit_SecondSubmitWhileInFlight(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	started := make(chan struct{})
	release := make(chan struct{})
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		close(started)
		<-release
		return uuid.New(), nil
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))
	first := cartWith(t, item, ingredients, groups, 1, nil)
	second := cartWith(t, item, ingredients, groups, 1, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), first, cashSubmission(testBranch()))
		done <- err
	}()

	<-started
	_, err := svc.Submit(context.Background(), second, cashSubmission(testBranch()))
	if !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
}

func TestSubmit_GuardReleasedAfterFailure(t *testing.T) {
	item, ingredients, groups := testMenu()
	store := defaultStore()

	failNext := true
	store.createOrderHeaderFn = func(ctx context.Context, arg CreateHeaderParams) (uuid.UUID, error) {
		if failNext {
			failNext = false
			return uuid.Nil, errors.New("db down")
		}
		return uuid.New(), nil
	}

	svc := newTestService(store, catalogFor(item, ingredients, groups))

	c := cartWith(t, item, ingredients, groups, 1, nil)
	if _, err := svc.Submit(context.Background(), c, cashSubmission(testBranch())); err == nil {
		t.Fatal("expected first submission to fail")
	}

	c2 := cartWith(t, item, ingredients, groups, 1, nil)
	if _, err := svc.Submit(context.Background(), c2, cashSubmission(testBranch())); err != nil {
		t.Fatalf("guard not released after failure: %v", err)
	}
}
