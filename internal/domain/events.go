package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated        = "order.created"
	EventOrderPaymentUpdated = "order.payment_updated"
	EventOrderStatusUpdated  = "order.status_updated"
)

// OrderEvent is the payload written to the outbox and published to the order event stream.
type OrderEvent struct {
	EventType     string        `json:"event_type"`
	OrderID       uuid.UUID     `json:"order_id"`
	TenantID      string        `json:"tenant_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Total         int64         `json:"total"`
	Currency      string        `json:"currency,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewOrderEvent(eventType string, o *Order, transactionID string) OrderEvent {
	return OrderEvent{
		EventType:     eventType,
		OrderID:       o.ID,
		TenantID:      o.TenantID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		Currency:      o.Currency,
		TransactionID: transactionID,
		OccurredAt:    o.UpdatedAt,
	}
}
