package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/audit"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/payment"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

const HeaderWebhookToken = "X-Webhook-Token"

type PaymentReconciler interface {
	ApplyPaymentEvent(ctx context.Context, source string, ev domain.PaymentEvent) (*domain.Order, domain.PaymentOutcome, error)
}

type WebhookConfig struct {
	// HostedProvider is the provider name whose callbacks must carry a valid signature.
	HostedProvider string
	Verifier       *payment.SignatureVerifier
	// NativeToken, when set, must match the X-Webhook-Token header of native callbacks.
	NativeToken  string
	MaxBodyBytes int64
}

type WebhookHandler struct {
	reconciler PaymentReconciler
	audit      audit.Recorder
	metrics    *metrics.Metrics
	cfg        WebhookConfig
	log        *slog.Logger
	now        func() time.Time
}

func NewWebhookHandler(reconciler PaymentReconciler, recorder audit.Recorder, m *metrics.Metrics, cfg WebhookConfig, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		audit:      recorder,
		metrics:    m,
		cfg:        cfg,
		log:        log.With("component", "payment_webhook"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type WebhookResponseDTO struct {
	Status        string `json:"status"`
	OrderID       string `json:"order_id,omitempty"`
	OrderStatus   string `json:"order_status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

// Handle accepts payment callbacks. Hosted-provider callbacks are verified against the
// raw body before anything is parsed; every other provider name takes the native payload,
// which can only settle orders that were not created through a hosted provider.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	receivedAt := h.now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		h.metrics.WebhookRejected(provider, "body")
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	entry := audit.Entry{
		Provider:      provider,
		PayloadSHA256: audit.PayloadDigest(body),
		RemoteAddr:    r.RemoteAddr,
		ReceivedAt:    receivedAt,
	}

	var ev *domain.PaymentEvent
	if h.cfg.HostedProvider != "" && provider == h.cfg.HostedProvider {
		entry.Source = service.SourceHosted
		if err := h.cfg.Verifier.Verify(body, r.Header.Get(payment.SignatureHeader)); err != nil {
			h.reject(r, entry, audit.OutcomeRejectedSignature, "signature", err)
			writeServiceError(w, r, h.log, err)
			return
		}

		parsed, ok, err := payment.ParseHostedEvent(body, receivedAt)
		if err != nil {
			h.reject(r, entry, audit.OutcomeInvalidPayload, "payload", err)
			respondError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
			return
		}
		if !ok {
			entry.Outcome = audit.OutcomeIgnored
			h.record(r.Context(), entry)
			respondJSON(w, http.StatusOK, WebhookResponseDTO{Status: audit.OutcomeIgnored})
			return
		}
		parsed.SignedBy = h.cfg.HostedProvider
		ev = parsed
	} else {
		entry.Source = service.SourceWebhook
		if h.cfg.NativeToken != "" &&
			subtle.ConstantTimeCompare([]byte(r.Header.Get(HeaderWebhookToken)), []byte(h.cfg.NativeToken)) != 1 {
			h.reject(r, entry, audit.OutcomeRejectedToken, "token", nil)
			respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid webhook token")
			return
		}

		parsed, err := payment.ParseNativeEvent(body, receivedAt)
		if err != nil {
			h.reject(r, entry, audit.OutcomeInvalidPayload, "payload", err)
			respondError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
			return
		}
		ev = parsed
	}

	entry.OrderID = ev.OrderID.String()
	entry.TransactionID = ev.TransactionID

	order, outcome, err := h.reconciler.ApplyPaymentEvent(r.Context(), entry.Source, *ev)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			entry.Outcome = audit.OutcomeOrderNotFound
			h.record(r.Context(), entry)
			respondError(w, http.StatusNotFound, "not_found", "order not found")
			return
		}
		if errors.Is(err, domain.ErrSignatureInvalid) {
			// hosted orders only take callbacks signed by their own provider
			h.reject(r, entry, audit.OutcomeRejectedSignature, "unsigned", err)
			writeServiceError(w, r, h.log, err)
			return
		}
		entry.Outcome = audit.OutcomeFailed
		entry.Reason = err.Error()
		h.record(r.Context(), entry)
		writeServiceError(w, r, h.log, err)
		return
	}

	entry.Outcome = string(outcome)
	h.record(r.Context(), entry)
	respondJSON(w, http.StatusOK, WebhookResponseDTO{
		Status:        string(outcome),
		OrderID:       order.ID.String(),
		OrderStatus:   order.Status.String(),
		PaymentStatus: order.PaymentStatus.String(),
	})
}

func (h *WebhookHandler) reject(r *http.Request, entry audit.Entry, outcome, reason string, err error) {
	h.metrics.WebhookRejected(entry.Provider, reason)
	entry.Outcome = outcome
	if err != nil {
		entry.Reason = err.Error()
	}
	h.log.WarnContext(r.Context(), "payment callback rejected",
		"provider", entry.Provider,
		"reason", reason,
		"remote_addr", entry.RemoteAddr,
		"error", err)
	h.record(r.Context(), entry)
}

// record never fails the callback; the audit log is best effort.
func (h *WebhookHandler) record(ctx context.Context, entry audit.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.audit.Record(ctx, entry); err != nil {
		h.log.WarnContext(ctx, "failed to record payment callback",
			"provider", entry.Provider,
			"order_id", entry.OrderID,
			"error", err)
	}
}
