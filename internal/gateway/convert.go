package gateway

import (
	"fmt"
	"time"

	"github.com/ikkim/storefront-cart/internal/app/model"
)

// toModelCart validates the wire cart and converts it. Any shape the engine
// could not reason about is rejected here.
func toModelCart(w *wireCart) (*model.Cart, error) {
	if w == nil {
		return nil, fmt.Errorf("response has no cart")
	}

	cart := &model.Cart{
		ID:        w.ID,
		UserID:    w.UserID,
		Mode:      model.CartModeAuthenticated,
		Lines:     make([]*model.CartLine, 0, len(w.Items)),
		CreatedAt: parseTime(w.CreatedAt),
		UpdatedAt: parseTime(w.UpdatedAt),
	}

	seen := make(map[string]bool, len(w.Items))
	for i, item := range w.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("item %d has no id", i)
		}
		if item.ProductID == "" {
			return nil, fmt.Errorf("item %s has no productId", item.ID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item %s has quantity %d", item.ID, item.Quantity)
		}
		if item.Price < 0 {
			return nil, fmt.Errorf("item %s has negative price", item.ID)
		}
		if seen[item.ProductID] {
			return nil, fmt.Errorf("product %s appears in more than one item", item.ProductID)
		}
		seen[item.ProductID] = true

		cart.Lines = append(cart.Lines, toModelLine(item))
	}
	return cart, nil
}

func toModelLine(item wireCartItem) *model.CartLine {
	line := &model.CartLine{
		ID:        item.ID,
		CartID:    item.CartID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		UnitPrice: item.Price,
		AddedAt:   parseTime(item.AddedAt),
		UpdatedAt: parseTime(item.UpdatedAt),
		Product:   model.Product{ID: item.ProductID, Price: item.Price, IsActive: true},
	}

	if p := item.Product; p != nil {
		line.Product = model.Product{
			ID:            item.ProductID,
			Name:          p.Name,
			Slug:          p.Slug,
			SKU:           p.SKU,
			Price:         p.Price,
			DiscountPrice: p.DiscountPrice,
			Stock:         p.Stock,
			IsActive:      p.IsActive,
		}
		if p.ProfileImgURL != nil {
			line.Product.ImageURL = *p.ProfileImgURL
		}
		// The item price is the snapshot; a lower live discount still applies.
		line.DiscountPrice = line.Product.ActiveDiscount(item.Price)
	}
	return line
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
