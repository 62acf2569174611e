package cart

import (
	"errors"

	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/fashraf/posmain-api/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors returned by the cart.
var (
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Line is one entry in the cart: a menu item with a confirmed
// customization. UnitPrice is the derived price of a single unit after
// customization; it is recomputed on every mutation, never stored
// independently of its inputs.
type Line struct {
	ID          uuid.UUID
	ItemID      uuid.UUID
	ItemName    string
	BasePrice   decimal.Decimal
	Quantity    int32
	Selection   *pricing.Selection
	Fingerprint string
	UnitPrice   decimal.Decimal
}

// LineTotal is the line's contribution to the cart subtotal.
func (l *Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
}

// Cart holds the order-in-progress. Owned exclusively by one checkout
// session; not safe for concurrent use.
type Cart struct {
	lines []*Line
}

// New creates an empty cart.
func New() *Cart {
	return &Cart{}
}

// AddOrMerge adds an item with the given customization. If a line for
// the same item with an identical customization fingerprint already
// exists, its quantity is incremented instead of appending a duplicate
// line.
func (c *Cart) AddOrMerge(item menu.Item, ingredients []menu.Ingredient, groups []menu.ReplacementGroup, quantity int32, sel *pricing.Selection) (*Line, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if sel == nil {
		sel = pricing.NewSelection()
	}

	fp := pricing.Fingerprint(sel)
	if existing := c.findByFingerprint(item.ID, fp); existing != nil {
		existing.Quantity += quantity
		return existing, nil
	}

	breakdown := pricing.Price(item, ingredients, groups, sel)
	line := &Line{
		ID:          uuid.New(),
		ItemID:      item.ID,
		ItemName:    item.Name,
		BasePrice:   item.BasePrice,
		Quantity:    quantity,
		Selection:   sel.Clone(),
		Fingerprint: fp,
		UnitPrice:   breakdown.Total,
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// SetQuantity changes a line's quantity. A value <= 0 removes the line
// entirely; no line may hold quantity zero.
func (c *Cart) SetQuantity(lineID uuid.UUID, quantity int32) error {
	line := c.find(lineID)
	if line == nil {
		return ErrLineNotFound
	}
	if quantity <= 0 {
		c.remove(lineID)
		return nil
	}
	line.Quantity = quantity
	return nil
}

// Remove deletes a line.
func (c *Cart) Remove(lineID uuid.UUID) error {
	if c.find(lineID) == nil {
		return ErrLineNotFound
	}
	c.remove(lineID)
	return nil
}

// ReplaceCustomization swaps a line's customization, repricing it and
// recomputing its fingerprint. If the new fingerprint collides with
// another line for the same item, the two are merged (quantities
// summed) and the edited line is dropped, so an edit can never leave
// two lines with identical effective customization.
func (c *Cart) ReplaceCustomization(lineID uuid.UUID, item menu.Item, ingredients []menu.Ingredient, groups []menu.ReplacementGroup, sel *pricing.Selection) error {
	line := c.find(lineID)
	if line == nil {
		return ErrLineNotFound
	}
	if sel == nil {
		sel = pricing.NewSelection()
	}

	fp := pricing.Fingerprint(sel)
	if other := c.findByFingerprint(item.ID, fp); other != nil && other.ID != lineID {
		other.Quantity += line.Quantity
		c.remove(lineID)
		return nil
	}

	breakdown := pricing.Price(item, ingredients, groups, sel)
	line.Selection = sel.Clone()
	line.Fingerprint = fp
	line.UnitPrice = breakdown.Total
	return nil
}

// Lines returns the cart lines in insertion order.
func (c *Cart) Lines() []*Line {
	out := make([]*Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Subtotal is the sum of line totals.
func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range c.lines {
		subtotal = subtotal.Add(line.LineTotal())
	}
	return subtotal
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) find(lineID uuid.UUID) *Line {
	for _, line := range c.lines {
		if line.ID == lineID {
			return line
		}
	}
	return nil
}

func (c *Cart) findByFingerprint(itemID uuid.UUID, fp string) *Line {
	for _, line := range c.lines {
		if line.ItemID == itemID && line.Fingerprint == fp {
			return line
		}
	}
	return nil
}

func (c *Cart) remove(lineID uuid.UUID) {
	for i, line := range c.lines {
		if line.ID == lineID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}
