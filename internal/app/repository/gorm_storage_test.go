package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ikkim/storefront-cart/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGormStorageTest(t *testing.T) *GormStorage {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})
	return NewGormStorage(testDB)
}

func TestGormStorage_SetGetDelete(t *testing.T) {
	storage := setupGormStorageTest(t)
	ctx := context.Background()

	_, err := storage.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, storage.Set(ctx, "k1", `[{"productId":"a","quantity":1}]`, 0))
	val, err := storage.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, `[{"productId":"a","quantity":1}]`, val)

	// Last write wins
	require.NoError(t, storage.Set(ctx, "k1", `[]`, 0))
	val, err = storage.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, `[]`, val)

	require.NoError(t, storage.Delete(ctx, "k1"))
	_, err = storage.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestGormStorage_Expiry(t *testing.T) {
	storage := setupGormStorageTest(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	storage.now = func() time.Time { return now }

	require.NoError(t, storage.Set(ctx, "short", "v", time.Minute))
	require.NoError(t, storage.Set(ctx, "forever", "v", 0))

	_, err := storage.Get(ctx, "short")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = storage.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, storage.Set(ctx, "short2", "v", time.Minute))
	now = now.Add(time.Hour)
	purged, err := storage.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = storage.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestGormStorage_BacksGuestCartRepository(t *testing.T) {
	storage := setupGormStorageTest(t)
	ctx := context.Background()
	repo := NewGuestCartRepository(storage, GuestCartKey("sf", "abc"), 0)

	repo.Save(ctx, buildGuestCart(4))
	assert.Len(t, repo.Load(ctx).Lines, 4)

	repo.Clear(ctx)
	assert.True(t, repo.Load(ctx).IsEmpty())
}
