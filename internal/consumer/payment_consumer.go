package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/payment"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
	"github.com/segmentio/kafka-go"
)

const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PaymentReconciler interface {
	ApplyPaymentEvent(ctx context.Context, source string, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error)
}

// PaymentConsumer reads native payment events from a Kafka topic and feeds them
// through the same reconciliation path as webhooks. Offsets are committed only
// once an event has been applied or is known to be unprocessable.
type PaymentConsumer struct {
	reconciler PaymentReconciler
	reader     messageReader
	log        *slog.Logger
	backoff    time.Duration
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPaymentConsumer(reconciler PaymentReconciler, reader messageReader, log *slog.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		reconciler: reconciler,
		reader:     reader,
		log:        log.With("component", "payment_consumer"),
		backoff:    minBackoff,
	}
}

func (c *PaymentConsumer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		c.processMessage(ctx)
	}
}

func (c *PaymentConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", "error", err)
	}
}

func (c *PaymentConsumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.ErrorContext(ctx, "error reading payment event", "error", err)
		c.sleep(ctx)
		return
	}

	for ctx.Err() == nil {
		if !c.handleMessage(ctx, m) {
			c.sleep(ctx)
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.ErrorContext(ctx, "failed to commit payment event",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err)
		}
		c.backoff = minBackoff
		return
	}
}

// handleMessage reports whether the message is done with and may be committed.
func (c *PaymentConsumer) handleMessage(ctx context.Context, m kafka.Message) bool {
	ev, err := payment.ParseNativeEvent(m.Value, time.Now().UTC())
	if err != nil {
		c.log.WarnContext(ctx, "skipping malformed payment event",
			"partition", m.Partition,
			"offset", m.Offset,
			"error", err)
		return true
	}

	_, _, err = c.reconciler.ApplyPaymentEvent(ctx, service.SourceStream, *ev)
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrSignatureInvalid):
		c.log.WarnContext(ctx, "skipping payment event",
			"order_id", ev.OrderID,
			"offset", m.Offset,
			"error", err)
		return true
	default:
		c.log.ErrorContext(ctx, "failed to apply payment event, will retry",
			"order_id", ev.OrderID,
			"offset", m.Offset,
			"retry_in", c.backoff,
			"error", err)
		return false
	}
}

func (c *PaymentConsumer) sleep(ctx context.Context) {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	c.backoff = min(c.backoff*2, maxBackoff)
}
