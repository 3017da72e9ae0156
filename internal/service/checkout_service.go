package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/cache"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/payment"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/repository"
	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/M-a-K-s-1-M/neshopify-sub000/internal/service")

// hostedCheckoutLockTTL outlives a provider call at its default timeout.
const hostedCheckoutLockTTL = 30 * time.Second

var errHostedNotConfigured = fmt.Errorf("%w: hosted payments are not configured", domain.ErrExternalServiceUnavailable)

// OrphanOrderError is returned when a hosted checkout created its order but no payment
// session could be attached. The order stays PENDING/PENDING without a session id.
type OrphanOrderError struct {
	OrderID uuid.UUID
	Err     error
}

func (e *OrphanOrderError) Error() string {
	return fmt.Sprintf("order %s has no payment session: %v", e.OrderID, e.Err)
}

func (e *OrphanOrderError) Unwrap() error { return e.Err }

type HostedCheckoutRequest struct {
	Customer   domain.CustomerContact
	SuccessURL string
	CancelURL  string
}

type HostedCheckoutResult struct {
	Order       *domain.Order
	RedirectURL string
}

type CheckoutService struct {
	orders   repository.OrderRepository
	carts    repository.CartRepository
	cache    cache.CartCache
	locker   cache.CheckoutLocker
	provider payment.HostedProvider
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// NewCheckoutService wires checkout. provider may be nil, in which case hosted checkout
// fails before any order is created. A nil locker lets concurrent hosted checkouts of
// the same cart through.
func NewCheckoutService(
	orders repository.OrderRepository,
	carts repository.CartRepository,
	cartCache cache.CartCache,
	locker cache.CheckoutLocker,
	provider payment.HostedProvider,
	m *metrics.Metrics,
	log *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		orders:   orders,
		carts:    carts,
		cache:    cartCache,
		locker:   locker,
		provider: provider,
		metrics:  m,
		log:      log.With("component", "checkout_service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Checkout turns the cart into a PENDING/NOT_PAID order and empties the cart in the same transaction.
func (s *CheckoutService) Checkout(ctx context.Context, tenantID string, identity domain.ShopperIdentity, customer domain.CustomerContact) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if err := identity.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	order, cart, err := s.orders.CheckoutCart(ctx, tenantID, identity, func(c *domain.Cart) (*domain.Order, error) {
		return domain.NewOrder(tenantID, identity, c.Items, customer, now)
	}, true)
	if err != nil {
		s.metrics.Checkout("direct", checkoutResult(err))
		recordSpanError(span, err)
		return nil, err
	}

	storeCart(ctx, s.cache, s.log, cart)
	s.metrics.Checkout("direct", "created")
	span.SetAttributes(attribute.String("order_id", order.ID.String()))
	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"tenant_id", tenantID,
		"total", order.Total,
		"items", len(order.Items))
	return order, nil
}

// CheckoutHosted creates the order, opens a hosted payment session for it and then
// subtracts the ordered quantities from the cart. Items added while the provider call
// was in flight stay in the cart. A second hosted checkout for the same shopper fails
// with ErrCheckoutInProgress until the first one returns.
func (s *CheckoutService) CheckoutHosted(ctx context.Context, tenantID string, identity domain.ShopperIdentity, req HostedCheckoutRequest) (*HostedCheckoutResult, error) {
	ctx, span := tracer.Start(ctx, "CheckoutService.CheckoutHosted")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if _, err := payment.RedirectURL(req.SuccessURL, uuid.Nil); err != nil {
		return nil, err
	}
	if _, err := payment.RedirectURL(req.CancelURL, uuid.Nil); err != nil {
		return nil, err
	}
	if s.provider == nil {
		s.metrics.Checkout("hosted", "provider_error")
		return nil, errHostedNotConfigured
	}

	unlock, err := s.lockCheckout(ctx, tenantID, identity)
	if err != nil {
		s.metrics.Checkout("hosted", "in_progress")
		return nil, err
	}
	defer unlock()

	now := s.now()
	order, _, err := s.orders.CheckoutCart(ctx, tenantID, identity, func(c *domain.Cart) (*domain.Order, error) {
		return domain.NewHostedOrder(tenantID, identity, c.Items, req.Customer, s.provider.Name(), now)
	}, false)
	if err != nil {
		s.metrics.Checkout("hosted", checkoutResult(err))
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("order_id", order.ID.String()))

	successURL, _ := payment.RedirectURL(req.SuccessURL, order.ID)
	cancelURL, _ := payment.RedirectURL(req.CancelURL, order.ID)

	session, err := s.provider.CreateSession(ctx, payment.SessionRequest{
		OrderID:       order.ID,
		Amount:        order.Total,
		Currency:      order.Currency,
		Description:   "Order " + order.ID.String(),
		CustomerEmail: req.Customer.Email,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
	})
	if err != nil {
		return nil, s.orphan(ctx, span, order, err)
	}

	sessionData := map[string]string{
		"url":        session.URL,
		"created_at": now.Format(time.RFC3339),
	}
	if session.ExpiresAt > 0 {
		sessionData["expires_at"] = strconv.FormatInt(session.ExpiresAt, 10)
	}
	attached, err := s.orders.AttachPaymentSession(ctx, order.ID, session.ID, sessionData)
	if err != nil {
		return nil, s.orphan(ctx, span, order, fmt.Errorf("%w: attach payment session: %v", domain.ErrExternalServiceUnavailable, err))
	}
	attached.Items = order.Items

	cart, err := s.carts.ConsumeItems(ctx, tenantID, identity, order.Items)
	if err != nil {
		// The order and session are valid; the shopper can still pay.
		s.log.ErrorContext(ctx, "failed to clear cart after hosted checkout",
			"order_id", order.ID,
			"tenant_id", tenantID,
			"error", err)
		invalidateCart(ctx, s.cache, s.log, tenantID, identity)
	} else {
		storeCart(ctx, s.cache, s.log, cart)
	}

	s.metrics.Checkout("hosted", "created")
	s.log.InfoContext(ctx, "hosted checkout session created",
		"order_id", order.ID,
		"tenant_id", tenantID,
		"provider", s.provider.Name(),
		"session_id", session.ID)

	return &HostedCheckoutResult{Order: attached, RedirectURL: session.URL}, nil
}

// lockCheckout fails open: without Redis, concurrent hosted checkouts are not serialized.
func (s *CheckoutService) lockCheckout(ctx context.Context, tenantID string, identity domain.ShopperIdentity) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	token, err := s.locker.AcquireCheckout(lockCtx, tenantID, identity, hostedCheckoutLockTTL)
	cancel()
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		return nil, domain.ErrCheckoutInProgress
	case err != nil:
		s.log.WarnContext(ctx, "checkout lock unavailable, continuing without it",
			"tenant_id", tenantID,
			"error", err)
		return func() {}, nil
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
		defer cancel()
		if err := s.locker.ReleaseCheckout(ctx, tenantID, identity, token); err != nil {
			s.log.WarnContext(ctx, "checkout lock release failed", "tenant_id", tenantID, "error", err)
		}
	}, nil
}

func (s *CheckoutService) orphan(ctx context.Context, span trace.Span, order *domain.Order, err error) error {
	s.metrics.Checkout("hosted", "provider_error")
	s.metrics.OrphanOrder()
	recordSpanError(span, err)
	s.log.ErrorContext(ctx, "hosted session creation failed, order left without payment session",
		"order_id", order.ID,
		"tenant_id", order.TenantID,
		"provider", order.PaymentProvider,
		"error", err)

	if !errors.Is(err, domain.ErrExternalServiceUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrExternalServiceUnavailable, err)
	}
	return &OrphanOrderError{OrderID: order.ID, Err: err}
}

func checkoutResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrCartEmpty):
		return "empty_cart"
	case errors.Is(err, domain.ErrMixedCurrency):
		return "mixed_currency"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid"
	default:
		return "error"
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func invalidateCart(ctx context.Context, c cache.CartCache, log *slog.Logger, tenantID string, identity domain.ShopperIdentity) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := c.Delete(ctx, tenantID, identity); err != nil {
		log.WarnContext(ctx, "cart cache invalidate failed", "tenant_id", tenantID, "error", err)
	}
}
