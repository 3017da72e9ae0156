package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/google/uuid"
)

var ErrLockHeld = errors.New("lock held")

// CheckoutLocker allows one hosted checkout per shopper at a time. A lock expires on its
// own after ttl; Release only deletes it while the token still owns it.
type CheckoutLocker interface {
	AcquireCheckout(ctx context.Context, tenantID string, identity domain.ShopperIdentity, ttl time.Duration) (string, error)
	ReleaseCheckout(ctx context.Context, tenantID string, identity domain.ShopperIdentity, token string) error
}

// releaseIfOwner deletes KEYS[1] only when it still holds ARGV[1].
var releaseIfOwner = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

func (r *RedisCache) AcquireCheckout(ctx context.Context, tenantID string, identity domain.ShopperIdentity, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, checkoutLockKey(tenantID, identity), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis lock failed: %w", err)
	}
	if !ok {
		return "", ErrLockHeld
	}
	return token, nil
}

func (r *RedisCache) ReleaseCheckout(ctx context.Context, tenantID string, identity domain.ShopperIdentity, token string) error {
	if err := r.client.Eval(ctx, releaseIfOwner, []string{checkoutLockKey(tenantID, identity)}, token).Err(); err != nil {
		return fmt.Errorf("redis unlock failed: %w", err)
	}
	return nil
}

func checkoutLockKey(tenantID string, identity domain.ShopperIdentity) string {
	return "lock:checkout:" + cacheKey(tenantID, identity)
}
