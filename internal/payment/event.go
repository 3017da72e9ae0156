package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/google/uuid"
)

var ErrInvalidPayload = errors.New("invalid payment payload")

type hostedEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string            `json:"id"`
			PaymentIntent     string            `json:"payment_intent"`
			PaymentStatus     string            `json:"payment_status"`
			ClientReferenceID string            `json:"client_reference_id"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseHostedEvent maps a verified hosted-provider event to a payment event.
// ok is false for event types that carry no payment state for an order.
func ParseHostedEvent(payload []byte, receivedAt time.Time) (ev *domain.PaymentEvent, ok bool, err error) {
	var e hostedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var status domain.PaymentStatus
	switch e.Type {
	case "checkout.session.completed":
		switch e.Data.Object.PaymentStatus {
		case "paid", "no_payment_required":
			status = domain.PaymentStatusPaid
		case "unpaid":
			status = domain.PaymentStatusPending
		default:
			return nil, false, nil
		}
	case "checkout.session.async_payment_succeeded":
		status = domain.PaymentStatusPaid
	default:
		return nil, false, nil
	}

	obj := e.Data.Object
	rawOrderID := obj.Metadata["order_id"]
	if rawOrderID == "" {
		rawOrderID = obj.ClientReferenceID
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: missing or malformed order id", ErrInvalidPayload)
	}

	txID := obj.PaymentIntent
	if txID == "" {
		txID = obj.ID
	}

	return &domain.PaymentEvent{
		OrderID:       orderID,
		PaymentStatus: status,
		TransactionID: txID,
		RawPayload:    json.RawMessage(payload),
		ReceivedAt:    receivedAt,
	}, true, nil
}

// NativeEvent is the payload of the unsigned webhook and of the payment event stream.
type NativeEvent struct {
	OrderID       string          `json:"orderId"`
	TransactionID string          `json:"transactionId,omitempty"`
	PaymentStatus string          `json:"paymentStatus,omitempty"`
	RawPayload    json.RawMessage `json:"rawPayload,omitempty"`
}

// ParseNativeEvent decodes a native payload. A missing paymentStatus means PAID.
func ParseNativeEvent(payload []byte, receivedAt time.Time) (*domain.PaymentEvent, error) {
	var e NativeEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	orderID, err := uuid.Parse(e.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: missing or malformed orderId", ErrInvalidPayload)
	}

	status := domain.PaymentStatusPaid
	if e.PaymentStatus != "" {
		if status, err = domain.ParsePaymentStatus(e.PaymentStatus); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	raw := e.RawPayload
	if len(raw) == 0 {
		raw = json.RawMessage(payload)
	}

	return &domain.PaymentEvent{
		OrderID:       orderID,
		PaymentStatus: status,
		TransactionID: e.TransactionID,
		RawPayload:    raw,
		ReceivedAt:    receivedAt,
	}, nil
}
