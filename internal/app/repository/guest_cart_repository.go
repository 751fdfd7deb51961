package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ikkim/storefront-cart/internal/app/model"
	"github.com/ikkim/storefront-cart/pkg/logger"
)

// GuestCartRepository persists one session's guest cart. It never returns
// errors: missing or corrupt data loads as an empty cart and write failures
// are logged.
type GuestCartRepository interface {
	Load(ctx context.Context) *model.Cart
	Save(ctx context.Context, cart *model.Cart)
	Clear(ctx context.Context)
}

// guestCartEntry is the persisted shape of one guest line.
type guestCartEntry struct {
	ProductID     string    `json:"productId"`
	Quantity      int       `json:"quantity"`
	UnitPrice     float64   `json:"unitPrice"`
	DiscountPrice *float64  `json:"discountPrice,omitempty"`
	Name          string    `json:"name,omitempty"`
	Slug          string    `json:"slug,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	Stock         int       `json:"stock"`
	AddedAt       time.Time `json:"addedAt"`
}

type guestCartRepository struct {
	storage Storage
	key     string
	ttl     time.Duration
}

// GuestCartKey builds the namespaced storage key of a session's guest cart.
func GuestCartKey(prefix, sessionID string) string {
	return prefix + ":" + sessionID
}

func NewGuestCartRepository(storage Storage, key string, ttl time.Duration) GuestCartRepository {
	return &guestCartRepository{storage: storage, key: key, ttl: ttl}
}

func (r *guestCartRepository) Load(ctx context.Context) *model.Cart {
	raw, err := r.storage.Get(ctx, r.key)
	if err != nil {
		if !errors.Is(err, ErrEntryNotFound) {
			logger.Warn("Failed to read guest cart, treating as empty", map[string]interface{}{
				"key":   r.key,
				"error": err.Error(),
			})
		}
		return model.NewGuestCart()
	}

	var entries []guestCartEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Warn("Corrupt guest cart, treating as empty", map[string]interface{}{
			"key":   r.key,
			"error": err.Error(),
		})
		return model.NewGuestCart()
	}

	cart := decodeGuestEntries(entries)
	logger.Debug("Guest cart loaded", map[string]interface{}{
		"key":   r.key,
		"lines": len(cart.Lines),
	})
	return cart
}

func (r *guestCartRepository) Save(ctx context.Context, cart *model.Cart) {
	entries := encodeGuestEntries(cart)
	data, err := json.Marshal(entries)
	if err != nil {
		logger.Error("Failed to encode guest cart", err, map[string]interface{}{
			"key": r.key,
		})
		return
	}

	if err := r.storage.Set(ctx, r.key, string(data), r.ttl); err != nil {
		logger.Error("Failed to save guest cart", err, map[string]interface{}{
			"key":   r.key,
			"lines": len(entries),
		})
		return
	}

	logger.Debug("Guest cart saved", map[string]interface{}{
		"key":   r.key,
		"lines": len(entries),
	})
}

func (r *guestCartRepository) Clear(ctx context.Context) {
	if err := r.storage.Delete(ctx, r.key); err != nil {
		logger.Error("Failed to clear guest cart", err, map[string]interface{}{
			"key": r.key,
		})
		return
	}
	logger.Debug("Guest cart cleared", map[string]interface{}{
		"key": r.key,
	})
}

func encodeGuestEntries(cart *model.Cart) []guestCartEntry {
	entries := make([]guestCartEntry, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		entries = append(entries, guestCartEntry{
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			DiscountPrice: l.DiscountPrice,
			Name:          l.Product.Name,
			Slug:          l.Product.Slug,
			ImageURL:      l.Product.ImageURL,
			Stock:         l.Product.Stock,
			AddedAt:       l.AddedAt,
		})
	}
	return entries
}

// decodeGuestEntries folds duplicate products and drops unusable entries so a
// hand-edited or partially written value still yields a valid cart.
func decodeGuestEntries(entries []guestCartEntry) *model.Cart {
	cart := model.NewGuestCart()
	index := make(map[string]*model.CartLine, len(entries))

	for _, e := range entries {
		if e.ProductID == "" || e.Quantity <= 0 {
			continue
		}
		if existing, ok := index[e.ProductID]; ok {
			existing.Quantity += e.Quantity
			continue
		}

		line := &model.CartLine{
			ID:            e.ProductID,
			ProductID:     e.ProductID,
			Quantity:      e.Quantity,
			UnitPrice:     e.UnitPrice,
			DiscountPrice: e.DiscountPrice,
			Product: model.Product{
				ID:            e.ProductID,
				Name:          e.Name,
				Slug:          e.Slug,
				Price:         e.UnitPrice,
				DiscountPrice: e.DiscountPrice,
				Stock:         e.Stock,
				ImageURL:      e.ImageURL,
				IsActive:      true,
			},
			AddedAt:   e.AddedAt,
			UpdatedAt: e.AddedAt,
		}
		index[e.ProductID] = line
		cart.Lines = append(cart.Lines, line)
	}
	return cart
}
