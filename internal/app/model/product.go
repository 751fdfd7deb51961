package model

// Product is the product snapshot carried by a cart line. The storefront API
// owns the product catalogue; carts only keep what they need to render and to
// clamp guest quantities.
type Product struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Slug          string   `json:"slug,omitempty"`
	SKU           string   `json:"sku,omitempty"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discount_price,omitempty"`
	Stock         int      `json:"stock"`
	ImageURL      string   `json:"image_url,omitempty"`
	IsActive      bool     `json:"is_active"`
}

// InStock reports whether at least one unit can be added.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// ActiveDiscount returns the discount price when it undercuts price, or nil.
func (p Product) ActiveDiscount(price float64) *float64 {
	if p.DiscountPrice == nil || *p.DiscountPrice < 0 || *p.DiscountPrice >= price {
		return nil
	}
	discount := *p.DiscountPrice
	return &discount
}
