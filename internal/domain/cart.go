package domain

import (
	"time"

	"github.com/google/uuid"
)

type Cart struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Identity  ShopperIdentity `json:"identity"`
	Version   int64           `json:"version"`
	Items     []CartItem      `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CartItem keeps the price snapshot taken when the product was first added.
type CartItem struct {
	ID        uuid.UUID `json:"id"`
	ProductID string    `json:"product_id"`
	Title     string    `json:"title"`
	UnitPrice int64     `json:"unit_price"`
	Currency  string    `json:"currency"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i CartItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Total is computed on every read and never persisted.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// Currency returns the shared currency of all items, or ErrMixedCurrency.
// An empty cart has no currency.
func (c *Cart) Currency() (string, error) {
	return singleCurrency(c.Items)
}

func singleCurrency(items []CartItem) (string, error) {
	currency := ""
	for _, item := range items {
		if currency == "" {
			currency = item.Currency
			continue
		}
		if item.Currency != currency {
			return "", ErrMixedCurrency
		}
	}
	return currency, nil
}

// MaxItemQuantity bounds a single cart line, including quantities merged by repeated adds.
const MaxItemQuantity = 9999

func ValidateQuantity(quantity int) error {
	if quantity <= 0 || quantity > MaxItemQuantity {
		return ErrInvalidQuantity
	}
	return nil
}
