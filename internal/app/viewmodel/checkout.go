package viewmodel

import "github.com/shopspring/decimal"

// CheckoutSummary is the order summary shown before payment.
type CheckoutSummary struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Delivery   decimal.Decimal `json:"delivery"`
	Discount   decimal.Decimal `json:"discount"`
	CouponCode string          `json:"coupon_code,omitempty"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"total_items"`
}

// Checkout computes subtotal + delivery - discount, floored at zero. Negative
// fees or discounts are treated as zero.
func Checkout(view *CartView, deliveryFee, couponDiscount decimal.Decimal) CheckoutSummary {
	delivery := nonNegative(deliveryFee).Round(moneyPlaces)
	discount := nonNegative(couponDiscount).Round(moneyPlaces)

	summary := CheckoutSummary{
		Subtotal: decimal.Zero,
		Delivery: delivery,
		Discount: discount,
	}
	if view != nil {
		summary.Subtotal = view.Subtotal
		summary.TotalItems = view.TotalItems
	}
	if view == nil || view.IsEmpty {
		summary.Delivery = decimal.Zero
	}

	summary.Total = nonNegative(summary.Subtotal.Add(summary.Delivery).Sub(discount))
	return summary
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
