package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fashraf/posmain-api/internal/enum"
	"github.com/fashraf/posmain-api/internal/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Order is a persisted order header.
type Order struct {
	ID              uuid.UUID
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
	PaymentMethod   string
	TenderedAmount  decimal.Decimal
	ChangeAmount    decimal.Decimal
	TakenBy         uuid.UUID
	Notes           string
	CreatedAt       time.Time
}

// OrderLine is a persisted order line with its resolved customization.
type OrderLine struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	MenuItemID        uuid.UUID
	ItemName          string
	Quantity          int32
	UnitPrice         decimal.Decimal
	Customization     order.LineCustomization
	CustomizationHash string
	LineTotal         decimal.Decimal
}

// GetNextOrderNumber returns the next per-branch order sequence for
// today. Order numbers are "PM-" followed by the sequence, so the
// numeric part starts at character 4.
func (s *Store) GetNextOrderNumber(ctx context.Context, branchID uuid.UUID) (int32, error) {
	var next int32
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(substring(order_number FROM 4)::int), 0) + 1
		FROM orders
		WHERE branch_id = $1 AND created_at::date = now()::date`,
		branchID,
	).Scan(&next)
	return next, err
}

// CreateOrderHeader inserts the order header and returns its id.
func (s *Store) CreateOrderHeader(ctx context.Context, arg order.CreateHeaderParams) (uuid.UUID, error) {
	paymentMethod := pgtype.Text{}
	if arg.PaymentMethod != "" {
		paymentMethod = pgtype.Text{String: arg.PaymentMethod, Valid: true}
	}
	deliveryAddress := pgtype.Text{}
	if arg.DeliveryAddress != "" {
		deliveryAddress = pgtype.Text{String: arg.DeliveryAddress, Valid: true}
	}

	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
		INSERT INTO orders (
			branch_id, order_number, order_type, customer_name, customer_mobile,
			delivery_address, subtotal, vat_rate, vat_amount, total_amount,
			payment_status, payment_method, tendered_amount, change_amount,
			taken_by, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`,
		arg.BranchID, arg.OrderNumber, arg.OrderType, arg.CustomerName, arg.CustomerMobile,
		deliveryAddress, decimalToNumeric(arg.Subtotal), decimalToNumeric(arg.VatRate),
		decimalToNumeric(arg.VatAmount), decimalToNumeric(arg.TotalAmount),
		arg.PaymentStatus, paymentMethod, decimalToNumeric(arg.TenderedAmount),
		decimalToNumeric(arg.ChangeAmount), arg.TakenBy, arg.Notes,
	).Scan(&id)
	return id, err
}

// CreateOrderLine inserts one order line and returns its id.
func (s *Store) CreateOrderLine(ctx context.Context, arg order.CreateLineParams) (uuid.UUID, error) {
	customization, err := json.Marshal(arg.Customization)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal customization: %w", err)
	}

	var id uuid.UUID
	err = s.db.QueryRow(ctx, `
		INSERT INTO order_lines (
			order_id, menu_item_id, item_name, quantity, unit_price,
			customization, customization_hash, line_total
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		arg.OrderID, arg.MenuItemID, arg.ItemName, arg.Quantity,
		decimalToNumeric(arg.UnitPrice), customization, arg.CustomizationHash,
		decimalToNumeric(arg.LineTotal),
	).Scan(&id)
	return id, err
}

// GetOrder fetches one order header, for receipts and reprints.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.getOrder(ctx, id, false)
}

// GetOrderForUpdate fetches one order header and locks its row
// (FOR NO KEY UPDATE), so concurrent settlements serialize.
func (s *Store) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.getOrder(ctx, id, true)
}

func (s *Store) getOrder(ctx context.Context, id uuid.UUID, forUpdate bool) (Order, error) {
	var (
		o               Order
		deliveryAddress pgtype.Text
		paymentMethod   pgtype.Text
		subtotal        pgtype.Numeric
		vatRate         pgtype.Numeric
		vatAmount       pgtype.Numeric
		totalAmount     pgtype.Numeric
		tenderedAmount  pgtype.Numeric
		changeAmount    pgtype.Numeric
	)
	query := `
		SELECT id, branch_id, order_number, order_type, customer_name, customer_mobile,
			delivery_address, subtotal, vat_rate, vat_amount, total_amount,
			payment_status, payment_method, tendered_amount, change_amount,
			taken_by, notes, created_at
		FROM orders
		WHERE id = $1`
	if forUpdate {
		query += ` FOR NO KEY UPDATE`
	}
	err := s.db.QueryRow(ctx, query, id,
	).Scan(&o.ID, &o.BranchID, &o.OrderNumber, &o.OrderType, &o.CustomerName,
		&o.CustomerMobile, &deliveryAddress, &subtotal, &vatRate, &vatAmount,
		&totalAmount, &o.PaymentStatus, &paymentMethod, &tenderedAmount,
		&changeAmount, &o.TakenBy, &o.Notes, &o.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	o.DeliveryAddress = deliveryAddress.String
	o.PaymentMethod = paymentMethod.String
	o.Subtotal = numericToDecimal(subtotal)
	o.VatRate = numericToDecimal(vatRate)
	o.VatAmount = numericToDecimal(vatAmount)
	o.TotalAmount = numericToDecimal(totalAmount)
	o.TenderedAmount = numericToDecimal(tenderedAmount)
	o.ChangeAmount = numericToDecimal(changeAmount)
	return o, nil
}

// SettleOrderParams records the collected payment on a pending order.
type SettleOrderParams struct {
	OrderID        uuid.UUID
	PaymentMethod  string
	TenderedAmount decimal.Decimal
	ChangeAmount   decimal.Decimal
}

// SettleOrder marks a PENDING order PAID with the collected payment
// method. Returns the number of rows updated; zero means the order was
// not pending.
func (s *Store) SettleOrder(ctx context.Context, arg SettleOrderParams) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET payment_status = $2, payment_method = $3,
			tendered_amount = $4, change_amount = $5
		WHERE id = $1 AND payment_status = $6`,
		arg.OrderID, enum.PaymentStatusPaid, arg.PaymentMethod,
		decimalToNumeric(arg.TenderedAmount), decimalToNumeric(arg.ChangeAmount),
		enum.PaymentStatusPending,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListOrderLines returns an order's lines in insertion order.
func (s *Store) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, menu_item_id, item_name, quantity, unit_price,
			customization, customization_hash, line_total
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var (
			line          OrderLine
			unitPrice     pgtype.Numeric
			lineTotal     pgtype.Numeric
			customization []byte
		)
		if err := rows.Scan(&line.ID, &line.OrderID, &line.MenuItemID, &line.ItemName,
			&line.Quantity, &unitPrice, &customization, &line.CustomizationHash, &lineTotal); err != nil {
			return nil, err
		}
		line.UnitPrice = numericToDecimal(unitPrice)
		line.LineTotal = numericToDecimal(lineTotal)
		if len(customization) > 0 {
			if err := json.Unmarshal(customization, &line.Customization); err != nil {
				return nil, fmt.Errorf("unmarshal customization: %w", err)
			}
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
