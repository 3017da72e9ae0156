package domain

import (
	"time"

	"github.com/google/uuid"
)

type CustomerContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// OrderItem is a point-in-time copy of a cart item; later catalog changes never reach it.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	ProductID string    `json:"product_id"`
	Title     string    `json:"title"`
	UnitPrice int64     `json:"unit_price"`
	Currency  string    `json:"currency"`
	Quantity  int       `json:"quantity"`
}

func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

type Order struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         string          `json:"tenant_id"`
	Identity         ShopperIdentity `json:"identity"`
	Status           OrderStatus     `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	Total            int64           `json:"total"`
	Currency         string          `json:"currency,omitempty"`
	Customer         CustomerContact `json:"customer"`
	Items            []OrderItem     `json:"items"`
	PaymentProvider  string          `json:"payment_provider,omitempty"`
	PaymentSessionID string          `json:"payment_session_id,omitempty"`
	PaymentDetails   PaymentDetails  `json:"payment_details"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewOrder copies every cart item into an order line and computes the total once.
// Orders built from carts with mixed currencies carry an empty Currency.
func NewOrder(tenantID string, identity ShopperIdentity, items []CartItem, customer CustomerContact, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	currency, err := singleCurrency(items)
	if err != nil {
		currency = ""
	}

	order := &Order{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Identity:      identity,
		Status:        OrderStatusPending,
		PaymentStatus: PaymentStatusNotPaid,
		Currency:      currency,
		Customer:      customer,
		Items:         make([]OrderItem, 0, len(items)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, item := range items {
		line := OrderItem{
			ID:        uuid.New(),
			ProductID: item.ProductID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
			Quantity:  item.Quantity,
		}
		order.Items = append(order.Items, line)
		order.Total += line.LineTotal()
	}
	return order, nil
}

// NewHostedOrder is NewOrder for the hosted payment flow: a single currency is required
// and the order starts with payment PENDING under the given provider.
func NewHostedOrder(tenantID string, identity ShopperIdentity, items []CartItem, customer CustomerContact, provider string, now time.Time) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}
	if _, err := singleCurrency(items); err != nil {
		return nil, err
	}

	order, err := NewOrder(tenantID, identity, items, customer, now)
	if err != nil {
		return nil, err
	}
	order.PaymentStatus = PaymentStatusPending
	order.PaymentProvider = provider
	return order, nil
}

// IsOrphaned reports a hosted order whose payment session was never created.
func (o *Order) IsOrphaned() bool {
	return o.PaymentProvider != "" && o.PaymentSessionID == "" && o.PaymentStatus == PaymentStatusPending
}
