package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/redis/go-redis/v9"
)

const directoryKey = "directory:approved"

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: ttl,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) GetDirectory(ctx context.Context) ([]domain.Nonprofit, error) {
	var out []domain.Nonprofit
	if err := r.get(ctx, directoryKey, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RedisCache) SetDirectory(ctx context.Context, nonprofits []domain.Nonprofit) error {
	return r.set(ctx, directoryKey, nonprofits)
}

func (r *RedisCache) GetNonprofit(ctx context.Context, id uuid.UUID) (*domain.Nonprofit, error) {
	var n domain.Nonprofit
	if err := r.get(ctx, nonprofitKey(id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *RedisCache) SetNonprofit(ctx context.Context, n *domain.Nonprofit) error {
	return r.set(ctx, nonprofitKey(n.ID), n)
}

// Invalidate drops the nonprofit entry and the directory listing it may appear in.
func (r *RedisCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, nonprofitKey(id), directoryKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisCache) get(ctx context.Context, key string, dst any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func (r *RedisCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}

	jitter := time.Duration(rand.Int63n(int64(r.baseTTL)/5 + 1))
	if err := r.client.Set(ctx, key, data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func nonprofitKey(id uuid.UUID) string {
	return fmt.Sprintf("nonprofit:%s", id)
}
