package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ikkim/storefront-cart/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStorage stores guest carts as plain Redis string keys.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEntryNotFound
	}
	if err != nil {
		logger.Error("Failed to read guest cart from Redis", err, map[string]interface{}{
			"key": key,
		})
		return "", err
	}
	return val, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.Error("Failed to write guest cart to Redis", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		logger.Error("Failed to delete guest cart from Redis", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}
