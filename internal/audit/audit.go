package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	OutcomeRejectedSignature = "rejected_signature"
	OutcomeRejectedToken     = "rejected_token"
	OutcomeInvalidPayload    = "invalid_payload"
	OutcomeOrderNotFound     = "order_not_found"
	OutcomeIgnored           = "ignored"
	OutcomeFailed            = "failed"
)

// Entry is one inbound payment callback. Payloads are kept as digests only.
type Entry struct {
	Provider      string    `bson:"provider" json:"provider"`
	Source        string    `bson:"source" json:"source"`
	OrderID       string    `bson:"order_id,omitempty" json:"order_id,omitempty"`
	TransactionID string    `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	Outcome       string    `bson:"outcome" json:"outcome"`
	Reason        string    `bson:"reason,omitempty" json:"reason,omitempty"`
	PayloadSHA256 string    `bson:"payload_sha256" json:"payload_sha256"`
	RemoteAddr    string    `bson:"remote_addr,omitempty" json:"remote_addr,omitempty"`
	ReceivedAt    time.Time `bson:"received_at" json:"received_at"`
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
	ListByOrder(ctx context.Context, orderID string, limit int64) ([]Entry, error)
}

func PayloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NopRecorder is used when no audit store is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }

func (NopRecorder) ListByOrder(context.Context, string, int64) ([]Entry, error) { return nil, nil }
