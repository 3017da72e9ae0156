package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/cache"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/catalog"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const cacheOpTimeout = time.Second

// Catalog is the product lookup the cart needs at add time.
type Catalog interface {
	Lookup(ctx context.Context, tenantID, productID string) (*catalog.Product, error)
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog Catalog
	log     *slog.Logger
	sfg     singleflight.Group // collapses concurrent misses for one cart
}

func NewCartService(repo repository.CartRepository, cartCache cache.CartCache, products Catalog, log *slog.Logger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cartCache,
		catalog: products,
		log:     log.With("component", "cart_service"),
	}
}

// Get returns the shopper's cart, creating an empty one on first access.
func (s *CartService) Get(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}

	key := tenantID + "|" + identity.String()
	v, err, _ := s.sfg.Do(key, func() (any, error) {
		cart, err := s.cache.Get(ctx, tenantID, identity)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WarnContext(ctx, "cart cache get failed", "tenant_id", tenantID, "error", err)
		}

		cart, err = s.repo.GetOrCreateCart(ctx, tenantID, identity)
		if err != nil {
			return nil, err
		}
		storeCart(ctx, s.cache, s.log, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// AddItem snapshots the product's current price. Adding a product already in the cart
// increments its quantity and keeps the first snapshot.
func (s *CartService) AddItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, productID string, quantity int) (*domain.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	product, err := s.catalog.Lookup(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	if !product.Available {
		return nil, domain.ErrProductUnavailable
	}

	cart, err := s.repo.AddItem(ctx, tenantID, identity, domain.CartItem{
		ProductID: product.ID,
		Title:     product.Title,
		UnitPrice: product.Price,
		Currency:  product.Currency,
		Quantity:  quantity,
	})
	return s.afterWrite(ctx, tenantID, identity, cart, err)
}

func (s *CartService) UpdateItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID string, quantity int) (*domain.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	id, err := parseItemID(itemID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}

	cart, err := s.repo.UpdateItemQuantity(ctx, tenantID, identity, id, quantity)
	return s.afterWrite(ctx, tenantID, identity, cart, err)
}

func (s *CartService) RemoveItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID string) (*domain.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	id, err := parseItemID(itemID)
	if err != nil {
		return nil, err
	}

	cart, err := s.repo.RemoveItem(ctx, tenantID, identity, id)
	return s.afterWrite(ctx, tenantID, identity, cart, err)
}

func (s *CartService) Clear(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.ClearCart(ctx, tenantID, identity)
	return s.afterWrite(ctx, tenantID, identity, cart, err)
}

func (s *CartService) afterWrite(ctx context.Context, tenantID string, identity domain.ShopperIdentity, cart *domain.Cart, err error) (*domain.Cart, error) {
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalidState) {
			s.log.ErrorContext(ctx, "cart write failed", "tenant_id", tenantID, "identity", identity.String(), "error", err)
		}
		return nil, err
	}
	storeCart(ctx, s.cache, s.log, cart)
	return cart, nil
}

func parseItemID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrItemNotFound, raw)
	}
	return id, nil
}

// storeCart writes a committed cart through to the cache. The cache keeps the newest
// version; if the write fails the entry is dropped so readers fall back to the database.
func storeCart(ctx context.Context, c cache.CartCache, log *slog.Logger, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()

	if _, err := c.Set(ctx, cart); err != nil {
		log.WarnContext(ctx, "cart cache set failed", "tenant_id", cart.TenantID, "error", err)
		if errDel := c.Delete(ctx, cart.TenantID, cart.Identity); errDel != nil {
			log.WarnContext(ctx, "cart cache invalidate failed", "tenant_id", cart.TenantID, "error", errDel)
		}
	}
}
