package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var ErrDuplicatePaymentSession = errors.New("payment session already attached to another order")

// OrderBuilder turns the locked cart into a new order. It runs inside the checkout transaction.
type OrderBuilder func(cart *domain.Cart) (*domain.Order, error)

type OrderFilter struct {
	Status                *domain.OrderStatus
	PaymentStatus         *domain.PaymentStatus
	Search                string
	Identity              *domain.ShopperIdentity
	MissingPaymentSession bool
	Limit                 int
	Offset                int
}

type OrderRepository interface {
	// CheckoutCart builds and stores an order from the locked cart; with clearCart the
	// cart is emptied in the same transaction.
	CheckoutCart(ctx context.Context, tenantID string, identity domain.ShopperIdentity, build OrderBuilder, clearCart bool) (*domain.Order, *domain.Cart, error)
	AttachPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string, session map[string]string) (*domain.Order, error)
	GetOrder(ctx context.Context, tenantID string, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, tenantID string, filter OrderFilter) ([]*domain.Order, int, error)
	UpdateOrderStatus(ctx context.Context, tenantID string, orderID uuid.UUID, status *domain.OrderStatus, payment *domain.PaymentStatus) (*domain.Order, error)
	ApplyPayment(ctx context.Context, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error)
}

const orderColumns = `id, tenant_id, owner_kind, owner_id, status, payment_status, total, currency,
	customer_name, customer_email, customer_phone, payment_provider, payment_session_id,
	payment_details, created_at, updated_at`

func (r *Repository) CheckoutCart(ctx context.Context, tenantID string, identity domain.ShopperIdentity, build OrderBuilder, clearCart bool) (*domain.Order, *domain.Cart, error) {
	var (
		order *domain.Order
		cart  *domain.Cart
	)
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		c, err := lockCart(ctx, tx, tenantID, identity)
		if err != nil {
			return err
		}
		if c.Items, err = loadCartItems(ctx, tx, c.ID); err != nil {
			return err
		}

		o, err := build(c)
		if err != nil {
			return err
		}
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}
		if err := insertOutboxEvent(ctx, tx, domain.NewOrderEvent(domain.EventOrderCreated, o, "")); err != nil {
			return err
		}

		if clearCart {
			if err := clearCartItems(ctx, tx, c.ID); err != nil {
				return err
			}
			if err := bumpCartVersion(ctx, tx, c); err != nil {
				return err
			}
			c.Items = []domain.CartItem{}
		}
		order, cart = o, c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, cart, nil
}

func (r *Repository) AttachPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string, session map[string]string) (*domain.Order, error) {
	var order *domain.Order
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		o.AttachSession(sessionID, session)
		if err := updateOrderState(ctx, tx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) GetOrder(ctx context.Context, tenantID string, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID, tenantID))
	if err != nil {
		return nil, err
	}
	if err := attachOrderItems(ctx, r.db, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns one page of a tenant's orders, newest first, with the total match count.
func (r *Repository) ListOrders(ctx context.Context, tenantID string, filter OrderFilter) ([]*domain.Order, int, error) {
	where, args := buildOrderFilter(tenantID, filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM orders WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	if err := attachOrderItems(ctx, r.db, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrderStatus is the administrative override: values are validated by the caller,
// transitions are not enforced.
func (r *Repository) UpdateOrderStatus(ctx context.Context, tenantID string, orderID uuid.UUID, status *domain.OrderStatus, payment *domain.PaymentStatus) (*domain.Order, error) {
	var order *domain.Order
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
		o, err := scanOrder(tx.QueryRowContext(ctx, query, orderID, tenantID))
		if err != nil {
			return err
		}

		changed := false
		if status != nil && *status != o.Status {
			o.Status = *status
			changed = true
		}
		if payment != nil && *payment != o.PaymentStatus {
			o.PaymentStatus = *payment
			changed = true
		}
		if changed {
			o.UpdatedAt = time.Now().UTC()
			if err := updateOrderState(ctx, tx, o); err != nil {
				return err
			}
			if err := insertOutboxEvent(ctx, tx, domain.NewOrderEvent(domain.EventOrderStatusUpdated, o, "")); err != nil {
				return err
			}
		}
		if err := attachOrderItems(ctx, tx, []*domain.Order{o}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ApplyPayment locks the order and merges the event through Order.ApplyPayment.
// A rejected event rolls the transaction back untouched. The returned order does not carry items.
func (r *Repository) ApplyPayment(ctx context.Context, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error) {
	var (
		order   *domain.Order
		outcome domain.PaymentOutcome
	)
	err := r.withTx(ctx, nil, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, ev.OrderID)
		if err != nil {
			return err
		}

		if outcome, err = o.ApplyPayment(ev); err != nil {
			return err
		}
		if outcome.Changed() {
			if err := updateOrderState(ctx, tx, o); err != nil {
				return err
			}
		}
		if outcome == domain.OutcomeApplied {
			event := domain.NewOrderEvent(domain.EventOrderPaymentUpdated, o, ev.TransactionID)
			if err := insertOutboxEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return order, outcome, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(tx.QueryRowContext(ctx, query, orderID))
}

func insertOrder(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	details, err := json.Marshal(o.PaymentDetails)
	if err != nil {
		return fmt.Errorf("marshal payment details: %w", err)
	}

	query := `INSERT INTO orders (id, tenant_id, owner_kind, owner_id, status, payment_status, total, currency,
	              customer_name, customer_email, customer_phone, payment_provider, payment_session_id,
	              payment_details, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = tx.ExecContext(ctx, query,
		o.ID,
		o.TenantID,
		o.Identity.Kind,
		o.Identity.Value,
		o.Status,
		o.PaymentStatus,
		o.Total,
		o.Currency,
		o.Customer.Name,
		o.Customer.Email,
		o.Customer.Phone,
		o.PaymentProvider,
		nullString(o.PaymentSessionID),
		details,
		o.CreatedAt,
		o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (id, order_id, position, product_id, title, unit_price, currency, quantity)
	              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for i, item := range o.Items {
		_, err := tx.ExecContext(ctx, itemQuery,
			item.ID,
			o.ID,
			i,
			item.ProductID,
			item.Title,
			item.UnitPrice,
			item.Currency,
			item.Quantity)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func updateOrderState(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	details, err := json.Marshal(o.PaymentDetails)
	if err != nil {
		return fmt.Errorf("marshal payment details: %w", err)
	}

	query := `UPDATE orders
	          SET status = $2, payment_status = $3, payment_session_id = $4, payment_details = $5, updated_at = $6
	          WHERE id = $1`
	_, err = tx.ExecContext(ctx, query,
		o.ID,
		o.Status,
		o.PaymentStatus,
		nullString(o.PaymentSessionID),
		details,
		o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicatePaymentSession
		}
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o         domain.Order
		sessionID sql.NullString
		details   []byte
	)
	err := row.Scan(
		&o.ID,
		&o.TenantID,
		&o.Identity.Kind,
		&o.Identity.Value,
		&o.Status,
		&o.PaymentStatus,
		&o.Total,
		&o.Currency,
		&o.Customer.Name,
		&o.Customer.Email,
		&o.Customer.Phone,
		&o.PaymentProvider,
		&sessionID,
		&details,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.PaymentSessionID = sessionID.String
	if len(details) > 0 {
		if err := json.Unmarshal(details, &o.PaymentDetails); err != nil {
			return nil, fmt.Errorf("unmarshal payment details: %w", err)
		}
	}
	return &o, nil
}

func attachOrderItems(ctx context.Context, q querier, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID.String()
		o.Items = []domain.OrderItem{}
		byID[o.ID] = o
	}

	query := `SELECT order_id, id, product_id, title, unit_price, currency, quantity
	          FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position`
	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID uuid.UUID
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.Title, &item.UnitPrice, &item.Currency, &item.Quantity); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}
	return nil
}

func buildOrderFilter(tenantID string, f OrderFilter) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}

	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.PaymentStatus != nil {
		add("payment_status = $%d", string(*f.PaymentStatus))
	}
	if f.Identity != nil {
		add("owner_kind = $%d", string(f.Identity.Kind))
		add("owner_id = $%d", f.Identity.Value)
	}
	if f.MissingPaymentSession {
		// same predicate as domain.Order.IsOrphaned
		clauses = append(clauses, "payment_provider <> '' AND payment_session_id IS NULL")
		add("payment_status = $%d", string(domain.PaymentStatusPending))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			`(customer_name ILIKE $%[1]d OR customer_email ILIKE $%[1]d OR customer_phone ILIKE $%[1]d
			  OR EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.title ILIKE $%[1]d))`, n))
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
