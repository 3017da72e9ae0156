package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/google/uuid"
)

// CartRepository mutations run in one transaction holding the cart row lock and
// return the cart as committed, with its version bumped.
type CartRepository interface {
	GetOrCreateCart(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error)
	AddItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, item domain.CartItem) (*domain.Cart, error)
	UpdateItemQuantity(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID uuid.UUID) (*domain.Cart, error)
	ClearCart(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error)
	// ConsumeItems subtracts ordered quantities, deleting lines that reach zero.
	ConsumeItems(ctx context.Context, tenantID string, identity domain.ShopperIdentity, items []domain.OrderItem) (*domain.Cart, error)
}

func (r *Repository) GetOrCreateCart(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	if err := ensureCart(ctx, r.db, tenantID, identity); err != nil {
		return nil, err
	}

	var cart *domain.Cart
	err := r.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, func(tx *sql.Tx) error {
		query := `SELECT id, version, created_at, updated_at FROM carts
		          WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3`
		c, err := scanCart(tx.QueryRowContext(ctx, query, tenantID, identity.Kind, identity.Value), tenantID, identity)
		if err != nil {
			return err
		}
		if c.Items, err = loadCartItems(ctx, tx, c.ID); err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (r *Repository) AddItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, item domain.CartItem) (*domain.Cart, error) {
	return r.mutateCart(ctx, tenantID, identity, func(tx *sql.Tx, cart *domain.Cart) error {
		query := `INSERT INTO cart_items (id, cart_id, product_id, title, unit_price, currency, quantity, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		          ON CONFLICT (cart_id, product_id)
		          DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
		          WHERE cart_items.quantity + EXCLUDED.quantity <= $8`
		res, err := tx.ExecContext(ctx, query,
			uuid.New(),
			cart.ID,
			item.ProductID,
			item.Title,
			item.UnitPrice,
			item.Currency,
			item.Quantity,
			domain.MaxItemQuantity)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}
		// no row means the merged quantity would exceed the line limit
		return expectAffected(res, domain.ErrInvalidQuantity)
	})
}

func (r *Repository) UpdateItemQuantity(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	return r.mutateCart(ctx, tenantID, identity, func(tx *sql.Tx, cart *domain.Cart) error {
		query := `UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2 AND cart_id = $3`
		res, err := tx.ExecContext(ctx, query, quantity, itemID, cart.ID)
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return expectAffected(res, domain.ErrItemNotFound)
	})
}

func (r *Repository) RemoveItem(ctx context.Context, tenantID string, identity domain.ShopperIdentity, itemID uuid.UUID) (*domain.Cart, error) {
	return r.mutateCart(ctx, tenantID, identity, func(tx *sql.Tx, cart *domain.Cart) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cart.ID)
		if err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		return expectAffected(res, domain.ErrItemNotFound)
	})
}

func (r *Repository) ClearCart(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	return r.mutateCart(ctx, tenantID, identity, func(tx *sql.Tx, cart *domain.Cart) error {
		return clearCartItems(ctx, tx, cart.ID)
	})
}

func (r *Repository) ConsumeItems(ctx context.Context, tenantID string, identity domain.ShopperIdentity, items []domain.OrderItem) (*domain.Cart, error) {
	return r.mutateCart(ctx, tenantID, identity, func(tx *sql.Tx, cart *domain.Cart) error {
		for _, item := range items {
			_, err := tx.ExecContext(ctx,
				`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2 AND quantity <= $3`,
				cart.ID, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("delete consumed item: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = quantity - $3, updated_at = NOW()
				 WHERE cart_id = $1 AND product_id = $2 AND quantity > $3`,
				cart.ID, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("decrement consumed item: %w", err)
			}
		}
		return nil
	})
}

// mutateCart locks the cart row, applies fn, bumps the version and reloads items.
func (r *Repository) mutateCart(ctx context.Context, tenantID string, identity domain.ShopperIdentity, fn func(tx *sql.Tx, cart *domain.Cart) error) (*domain.Cart, error) {
	var cart *domain.Cart
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		c, err := lockCart(ctx, tx, tenantID, identity)
		if err != nil {
			return err
		}
		if err := fn(tx, c); err != nil {
			return err
		}
		if err := bumpCartVersion(ctx, tx, c); err != nil {
			return err
		}
		if c.Items, err = loadCartItems(ctx, tx, c.ID); err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureCart(ctx context.Context, db execer, tenantID string, identity domain.ShopperIdentity) error {
	query := `INSERT INTO carts (id, tenant_id, owner_kind, owner_id, version, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
	          ON CONFLICT (tenant_id, owner_kind, owner_id) DO NOTHING`
	if _, err := db.ExecContext(ctx, query, uuid.New(), tenantID, identity.Kind, identity.Value); err != nil {
		return fmt.Errorf("ensure cart: %w", err)
	}
	return nil
}

func lockCart(ctx context.Context, tx *sql.Tx, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	if err := ensureCart(ctx, tx, tenantID, identity); err != nil {
		return nil, err
	}
	query := `SELECT id, version, created_at, updated_at FROM carts
	          WHERE tenant_id = $1 AND owner_kind = $2 AND owner_id = $3
	          FOR UPDATE`
	return scanCart(tx.QueryRowContext(ctx, query, tenantID, identity.Kind, identity.Value), tenantID, identity)
}

func scanCart(row *sql.Row, tenantID string, identity domain.ShopperIdentity) (*domain.Cart, error) {
	cart := &domain.Cart{TenantID: tenantID, Identity: identity}
	err := row.Scan(&cart.ID, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	return cart, nil
}

func bumpCartVersion(ctx context.Context, tx *sql.Tx, cart *domain.Cart) error {
	query := `UPDATE carts SET version = version + 1, updated_at = NOW() WHERE id = $1 RETURNING version, updated_at`
	if err := tx.QueryRowContext(ctx, query, cart.ID).Scan(&cart.Version, &cart.UpdatedAt); err != nil {
		return fmt.Errorf("bump cart version: %w", err)
	}
	return nil
}

func clearCartItems(ctx context.Context, tx *sql.Tx, cartID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	return nil
}

func loadCartItems(ctx context.Context, q querier, cartID uuid.UUID) ([]domain.CartItem, error) {
	query := `SELECT id, product_id, title, unit_price, currency, quantity, created_at, updated_at
	          FROM cart_items WHERE cart_id = $1 ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query cart items: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID,
			&item.ProductID,
			&item.Title,
			&item.UnitPrice,
			&item.Currency,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}

func expectAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
