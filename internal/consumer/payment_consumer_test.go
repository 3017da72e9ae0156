package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	fetchErr  error
}

func (r *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErr != nil {
		err := r.fetchErr
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *mockReader) Close() error { return nil }

func (r *mockReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type mockReconciler struct {
	mu     sync.Mutex
	errs   []error
	events []domain.PaymentEvent
	source string
}

func (m *mockReconciler) ApplyPaymentEvent(_ context.Context, source string, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.source = source
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, "", err
		}
	}
	return &domain.Order{ID: ev.OrderID}, domain.OutcomeApplied, nil
}

func (m *mockReconciler) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value)}
}

func newTestConsumer(rec *mockReconciler, reader *mockReader) *PaymentConsumer {
	c := NewPaymentConsumer(rec, reader, logger.Nop())
	c.backoff = time.Millisecond
	return c
}

func TestProcessMessage_AppliesAndCommits(t *testing.T) {
	orderID := uuid.New()
	reader := &mockReader{messages: []kafka.Message{
		message(7, `{"orderId":"`+orderID.String()+`","transactionId":"tx_9","paymentStatus":"PAID"}`),
	}}
	rec := &mockReconciler{}

	newTestConsumer(rec, reader).processMessage(context.Background())

	require.Len(t, rec.events, 1)
	assert.Equal(t, orderID, rec.events[0].OrderID)
	assert.Equal(t, domain.PaymentStatusPaid, rec.events[0].PaymentStatus)
	assert.Equal(t, "tx_9", rec.events[0].TransactionID)
	assert.Equal(t, service.SourceStream, rec.source)
	assert.Equal(t, []int64{7}, reader.commits())
}

func TestProcessMessage_SkipsUnprocessable(t *testing.T) {
	orderID := uuid.New().String()
	tests := []struct {
		name  string
		value string
		err   error
		calls int
	}{
		{"malformed json", `{"orderId":`, nil, 0},
		{"unknown status", `{"orderId":"` + orderID + `","paymentStatus":"SETTLED"}`, nil, 0},
		{"unknown order", `{"orderId":"` + orderID + `"}`, domain.ErrOrderNotFound, 1},
		{"invalid state", `{"orderId":"` + orderID + `"}`, domain.ErrInvalidState, 1},
		{"hosted order", `{"orderId":"` + orderID + `","transactionId":"forged"}`, domain.ErrUnsignedPaymentEvent, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockReader{messages: []kafka.Message{message(3, tt.value)}}
			rec := &mockReconciler{errs: []error{tt.err}}

			newTestConsumer(rec, reader).processMessage(context.Background())

			assert.Equal(t, tt.calls, rec.calls())
			assert.Equal(t, []int64{3}, reader.commits())
		})
	}
}

func TestProcessMessage_RetriesTransientFailures(t *testing.T) {
	orderID := uuid.New().String()
	reader := &mockReader{messages: []kafka.Message{message(11, `{"orderId":"`+orderID+`"}`)}}
	rec := &mockReconciler{errs: []error{errors.New("db down"), errors.New("db down"), nil}}

	newTestConsumer(rec, reader).processMessage(context.Background())

	assert.Equal(t, 3, rec.calls())
	assert.Equal(t, []int64{11}, reader.commits())
}

func TestProcessMessage_CancelledWhileRetryingDoesNotCommit(t *testing.T) {
	orderID := uuid.New().String()
	reader := &mockReader{messages: []kafka.Message{message(5, `{"orderId":"`+orderID+`"}`)}}
	failures := make([]error, 1000)
	for i := range failures {
		failures[i] = errors.New("db down")
	}
	rec := &mockReconciler{errs: failures}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	newTestConsumer(rec, reader).processMessage(ctx)

	assert.GreaterOrEqual(t, rec.calls(), 1)
	assert.Empty(t, reader.commits())
}

func TestRun_ConsumesUntilCancelled(t *testing.T) {
	reader := &mockReader{}
	for i := 0; i < 3; i++ {
		reader.messages = append(reader.messages, message(int64(i), `{"orderId":"`+uuid.NewString()+`"}`))
	}
	rec := &mockReconciler{}
	c := newTestConsumer(rec, reader)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, []int64{0, 1, 2}, reader.commits())
}
