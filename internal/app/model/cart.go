package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartMode selects the backing store of a cart.
type CartMode string

const (
	CartModeGuest         CartMode = "guest"
	CartModeAuthenticated CartMode = "authenticated"
)

// CartLine is one product+quantity entry. Guest lines use the product ID as
// their line ID.
type CartLine struct {
	ID            string    `json:"id"`
	CartID        string    `json:"cart_id,omitempty"`
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	DiscountPrice *float64  `json:"discount_price,omitempty"`
	Product       Product   `json:"product"`
	AddedAt       time.Time `json:"added_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EffectivePrice is the discount price when present, otherwise the unit price.
func (l *CartLine) EffectivePrice() decimal.Decimal {
	if l.DiscountPrice != nil {
		return decimal.NewFromFloat(*l.DiscountPrice)
	}
	return decimal.NewFromFloat(l.UnitPrice)
}

// LineTotal is quantity * EffectivePrice.
func (l *CartLine) LineTotal() decimal.Decimal {
	return l.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered set of lines with at most one line per product.
//
// Carts are treated as immutable values once published: every mutation helper
// returns a new Cart and shares the *CartLine pointers of untouched lines.
type Cart struct {
	ID        string      `json:"id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Mode      CartMode    `json:"mode"`
	Lines     []*CartLine `json:"lines"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewGuestCart returns an empty guest cart.
func NewGuestCart() *Cart {
	return &Cart{Mode: CartModeGuest, Lines: []*CartLine{}}
}

// Clone copies the cart header and line slice; line pointers are shared.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]*CartLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	return &out
}

// Line returns the line for productID, or nil.
func (c *Cart) Line(productID string) *CartLine {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l
		}
	}
	return nil
}

// LineByID returns the line with the given line ID, or nil.
func (c *Cart) LineByID(lineID string) *CartLine {
	for _, l := range c.Lines {
		if l.ID == lineID {
			return l
		}
	}
	return nil
}

// WithLine returns a cart where line replaces any line of the same product,
// or is appended when the product is new.
func (c *Cart) WithLine(line *CartLine) *Cart {
	out := c.Clone()
	for i, l := range out.Lines {
		if l.ProductID == line.ProductID {
			out.Lines[i] = line
			return out
		}
	}
	out.Lines = append(out.Lines, line)
	return out
}

// WithoutProduct returns a cart without the line for productID.
func (c *Cart) WithoutProduct(productID string) *Cart {
	out := c.Clone()
	lines := out.Lines[:0]
	for _, l := range out.Lines {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	out.Lines = lines
	return out
}

// WithQuantity returns a cart where productID has the given quantity.
// A quantity <= 0 removes the line.
func (c *Cart) WithQuantity(productID string, quantity int, at time.Time) *Cart {
	if quantity <= 0 {
		return c.WithoutProduct(productID)
	}
	existing := c.Line(productID)
	if existing == nil {
		return c.Clone()
	}
	updated := *existing
	updated.Quantity = quantity
	updated.UpdatedAt = at
	return c.WithLine(&updated)
}

// Emptied returns a cart with the same header and no lines.
func (c *Cart) Emptied() *Cart {
	out := c.Clone()
	out.Lines = []*CartLine{}
	return out
}

// TotalItems is the sum of all line quantities.
func (c *Cart) TotalItems() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// Subtotal is the sum of all line totals.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, l := range c.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Quantities maps product IDs to quantities.
func (c *Cart) Quantities() map[string]int {
	out := make(map[string]int)
	if c == nil {
		return out
	}
	for _, l := range c.Lines {
		out[l.ProductID] = l.Quantity
	}
	return out
}

// ClampQuantity bounds quantity to 1..stock. A non-positive stock yields 0.
func ClampQuantity(quantity, stock int) int {
	if stock <= 0 {
		return 0
	}
	if quantity < 1 {
		return 1
	}
	if quantity > stock {
		return stock
	}
	return quantity
}

// Equivalent reports whether two lines render identically.
func (l *CartLine) Equivalent(o *CartLine) bool {
	if l == o {
		return true
	}
	if l == nil || o == nil {
		return false
	}
	return l.ID == o.ID &&
		l.ProductID == o.ProductID &&
		l.Quantity == o.Quantity &&
		l.UnitPrice == o.UnitPrice &&
		floatPtrEqual(l.DiscountPrice, o.DiscountPrice) &&
		l.Product.Name == o.Product.Name &&
		l.Product.ImageURL == o.Product.ImageURL &&
		l.Product.Stock == o.Product.Stock &&
		floatPtrEqual(l.Product.DiscountPrice, o.Product.DiscountPrice)
}

// ReuseLines returns next with every line that is Equivalent to a line of prev
// replaced by prev's pointer, so unchanged lines keep their identity.
func ReuseLines(prev, next *Cart) *Cart {
	if prev == nil || next == nil || len(prev.Lines) == 0 {
		return next
	}
	byID := make(map[string]*CartLine, len(prev.Lines))
	for _, l := range prev.Lines {
		byID[l.ID] = l
	}
	out := next.Clone()
	for i, l := range out.Lines {
		if old, ok := byID[l.ID]; ok && old.Equivalent(l) {
			out.Lines[i] = old
		}
	}
	return out
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
