package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentDetails is stored as a JSON document on the order. Session data is written once
// when a hosted session is created; transactions are appended, keyed by provider transaction id.
type PaymentDetails struct {
	Session      map[string]string            `json:"session,omitempty"`
	Transactions map[string]TransactionRecord `json:"transactions,omitempty"`
}

type TransactionRecord struct {
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

type PaymentEvent struct {
	OrderID       uuid.UUID
	PaymentStatus PaymentStatus
	TransactionID string
	RawPayload    json.RawMessage
	ReceivedAt    time.Time
	// SignedBy names the provider whose signature was verified on this event.
	// Empty for unsigned sources (native callbacks, the payment stream).
	SignedBy string
}

type PaymentOutcome string

const (
	// OutcomeApplied means the payment status moved forward.
	OutcomeApplied PaymentOutcome = "applied"
	// OutcomeRecorded means only a new transaction record was merged.
	OutcomeRecorded  PaymentOutcome = "recorded"
	OutcomeDuplicate PaymentOutcome = "duplicate"
	// OutcomeStale means the event would move payment status backward; it is ignored.
	OutcomeStale PaymentOutcome = "stale"
)

func (o PaymentOutcome) Changed() bool {
	return o == OutcomeApplied || o == OutcomeRecorded
}

// ApplyPayment merges a payment event into the order. It is the only place where the
// payment axis drives the business status: PAID confirms an order that may move to CONFIRMED.
// Orders paid through a hosted provider only accept events carrying that provider's signature.
func (o *Order) ApplyPayment(ev PaymentEvent) (PaymentOutcome, error) {
	if o.PaymentProvider != "" && ev.SignedBy != o.PaymentProvider {
		return "", ErrUnsignedPaymentEvent
	}

	switch {
	case ev.PaymentStatus == o.PaymentStatus:
		if o.recordTransaction(ev) {
			o.UpdatedAt = ev.ReceivedAt
			return OutcomeRecorded, nil
		}
		return OutcomeDuplicate, nil
	case o.PaymentStatus.CanTransitionTo(ev.PaymentStatus):
		o.PaymentStatus = ev.PaymentStatus
		if ev.PaymentStatus == PaymentStatusPaid && o.Status.CanTransitionTo(OrderStatusConfirmed) {
			o.Status = OrderStatusConfirmed
		}
		o.recordTransaction(ev)
		o.UpdatedAt = ev.ReceivedAt
		return OutcomeApplied, nil
	default:
		return OutcomeStale, nil
	}
}

func (o *Order) recordTransaction(ev PaymentEvent) bool {
	if ev.TransactionID == "" {
		return false
	}
	if _, ok := o.PaymentDetails.Transactions[ev.TransactionID]; ok {
		return false
	}
	if o.PaymentDetails.Transactions == nil {
		o.PaymentDetails.Transactions = make(map[string]TransactionRecord)
	}
	o.PaymentDetails.Transactions[ev.TransactionID] = TransactionRecord{
		PaymentStatus: ev.PaymentStatus,
		Payload:       ev.RawPayload,
		RecordedAt:    ev.ReceivedAt,
	}
	return true
}

// AttachSession stores the hosted session correlation without overwriting existing values.
func (o *Order) AttachSession(sessionID string, session map[string]string) {
	if o.PaymentSessionID == "" {
		o.PaymentSessionID = sessionID
	}
	if o.PaymentDetails.Session == nil {
		o.PaymentDetails.Session = make(map[string]string, len(session))
	}
	for k, v := range session {
		if _, ok := o.PaymentDetails.Session[k]; !ok {
			o.PaymentDetails.Session[k] = v
		}
	}
}
