package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/redis/go-redis/v9"
)

// setIfNewer writes the cart only when the stored version is not newer.
// KEYS[1] cart key; ARGV[1] version, ARGV[2] cart json, ARGV[3] ttl seconds.
var setIfNewer = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	key := cacheKey(tenantID, identity)

	data, err := r.client.HGet(ctx, key, "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}

	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, cart *domain.Cart) (bool, error) {
	key := cacheKey(cart.TenantID, cart.Identity)
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	stored, err := setIfNewer.Run(ctx, r.client, []string{key}, cart.Version, string(jsonCart), int64(ttl.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("redis set failed: %w", err)
	}
	return stored == 1, nil
}

func (r *RedisCache) Delete(ctx context.Context, tenantID string, identity domain.ShopperIdentity) error {
	key := cacheKey(tenantID, identity)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(tenantID string, identity domain.ShopperIdentity) string {
	return fmt.Sprintf("cart:%s:%s:%s", tenantID, identity.Kind, identity.Value)
}
