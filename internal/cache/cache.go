package cache

import (
	"context"
	"errors"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// CartCache is a read-through cache of carts keyed by tenant and shopper identity.
// Set only replaces an entry holding an older cart version.
type CartCache interface {
	Get(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) (bool, error)
	Delete(ctx context.Context, tenantID string, identity domain.ShopperIdentity) error
}
