package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ikkim/storefront-cart/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGuestCartTest(t *testing.T) (GuestCartRepository, *MemoryStorage) {
	storage := NewMemoryStorage()
	repo := NewGuestCartRepository(storage, GuestCartKey("test:guest_cart", "session-1"), 0)
	return repo, storage
}

func buildGuestCart(n int) *model.Cart {
	cart := model.NewGuestCart()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p-%d", i)
		cart = cart.WithLine(&model.CartLine{
			ID:        id,
			ProductID: id,
			Quantity:  i%5 + 1,
			UnitPrice: float64(100 + i),
			Product:   model.Product{ID: id, Name: "Product " + id, Stock: 10},
			AddedAt:   time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
	return cart
}

func TestGuestCartRepository_LoadMissing(t *testing.T) {
	repo, _ := setupGuestCartTest(t)

	cart := repo.Load(context.Background())
	require.NotNil(t, cart)
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, model.CartModeGuest, cart.Mode)
}

func TestGuestCartRepository_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 50} {
		t.Run(fmt.Sprintf("%d lines", n), func(t *testing.T) {
			repo, _ := setupGuestCartTest(t)
			ctx := context.Background()

			original := buildGuestCart(n)
			repo.Save(ctx, original)
			loaded := repo.Load(ctx)

			assert.Equal(t, original.Quantities(), loaded.Quantities())
			require.Len(t, loaded.Lines, n)
			for i, line := range loaded.Lines {
				assert.Equal(t, original.Lines[i].ProductID, line.ProductID, "insertion order is kept")
				assert.Equal(t, line.ProductID, line.ID)
				assert.Equal(t, original.Lines[i].UnitPrice, line.UnitPrice)
				assert.Equal(t, 10, line.Product.Stock)
			}
		})
	}
}

func TestGuestCartRepository_CorruptDataLoadsEmpty(t *testing.T) {
	repo, storage := setupGuestCartTest(t)
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, GuestCartKey("test:guest_cart", "session-1"), "{not json", 0))

	cart := repo.Load(ctx)
	assert.True(t, cart.IsEmpty())
}

func TestGuestCartRepository_NormalizesEntries(t *testing.T) {
	repo, storage := setupGuestCartTest(t)
	ctx := context.Background()

	raw := `[
		{"productId":"a","quantity":2,"unitPrice":10,"stock":5},
		{"productId":"b","quantity":0,"unitPrice":3},
		{"productId":"","quantity":4},
		{"productId":"a","quantity":1,"unitPrice":10,"stock":5}
	]`
	require.NoError(t, storage.Set(ctx, GuestCartKey("test:guest_cart", "session-1"), raw, 0))

	cart := repo.Load(ctx)
	assert.Equal(t, map[string]int{"a": 3}, cart.Quantities())
}

func TestGuestCartRepository_Clear(t *testing.T) {
	repo, storage := setupGuestCartTest(t)
	ctx := context.Background()

	repo.Save(ctx, buildGuestCart(3))
	assert.Equal(t, 1, storage.Len())

	repo.Clear(ctx)
	assert.Equal(t, 0, storage.Len())
	assert.True(t, repo.Load(ctx).IsEmpty())

	// Clearing twice is harmless
	repo.Clear(ctx)
}

func TestGuestCartRepository_TTL(t *testing.T) {
	storage := NewMemoryStorage()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storage.now = func() time.Time { return now }
	repo := NewGuestCartRepository(storage, "k", time.Hour)
	ctx := context.Background()

	repo.Save(ctx, buildGuestCart(2))
	assert.Len(t, repo.Load(ctx).Lines, 2)

	now = now.Add(2 * time.Hour)
	assert.True(t, repo.Load(ctx).IsEmpty())
}
