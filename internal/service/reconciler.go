package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// Reconciliation sources.
const (
	SourceWebhook = "webhook"
	SourceHosted  = "hosted"
	SourceStream  = "stream"
)

type paymentApplier interface {
	ApplyPayment(ctx context.Context, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error)
}

// Reconciler applies inbound payment events to orders. Callers must have authenticated
// the event before handing it over.
type Reconciler struct {
	orders  paymentApplier
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

func NewReconciler(orders paymentApplier, m *metrics.Metrics, log *slog.Logger) *Reconciler {
	return &Reconciler{
		orders:  orders,
		metrics: m,
		log:     log.With("component", "reconciler"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) ApplyPaymentEvent(ctx context.Context, source string, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error) {
	ctx, span := tracer.Start(ctx, "Reconciler.ApplyPaymentEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("order_id", ev.OrderID.String()),
		attribute.String("source", source),
		attribute.String("payment_status", ev.PaymentStatus.String()),
	)

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = r.now()
	}
	ev.RawPayload = normalizePayload(ev.RawPayload)

	order, outcome, err := r.orders.ApplyPayment(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.metrics.Reconciliation(source, "not_found")
			r.log.WarnContext(ctx, "payment event for unknown order",
				"order_id", ev.OrderID,
				"source", source,
				"transaction_id", ev.TransactionID)
			return nil, "", err
		}
		if errors.Is(err, domain.ErrSignatureInvalid) {
			r.metrics.Reconciliation(source, "rejected")
			r.log.WarnContext(ctx, "unsigned payment event for hosted order rejected",
				"order_id", ev.OrderID,
				"source", source,
				"transaction_id", ev.TransactionID)
			return nil, "", err
		}
		r.metrics.Reconciliation(source, "error")
		recordSpanError(span, err)
		r.log.ErrorContext(ctx, "failed to apply payment event",
			"order_id", ev.OrderID,
			"source", source,
			"error", err)
		return nil, "", err
	}

	r.metrics.Reconciliation(source, string(outcome))
	span.SetAttributes(attribute.String("outcome", string(outcome)))

	attrs := []any{
		"order_id", order.ID,
		"tenant_id", order.TenantID,
		"source", source,
		"transaction_id", ev.TransactionID,
		"outcome", outcome,
		"status", order.Status,
		"payment_status", order.PaymentStatus,
	}
	switch outcome {
	case domain.OutcomeStale:
		r.log.WarnContext(ctx, "stale payment event ignored", append(attrs, "incoming_status", ev.PaymentStatus)...)
	case domain.OutcomeDuplicate:
		r.log.DebugContext(ctx, "duplicate payment event", attrs...)
	default:
		r.log.InfoContext(ctx, "payment event applied", attrs...)
	}
	return order, outcome, nil
}

// normalizePayload makes sure the stored payload is a JSON value.
func normalizePayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || json.Valid(raw) {
		return raw
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return quoted
}
