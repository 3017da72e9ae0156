package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// errProviderRejected marks 4xx answers; they do not count against the breaker.
var errProviderRejected = errors.New("provider rejected request")

type StripeConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker circuitbreaker.Config
}

// StripeClient creates Checkout Sessions through the Stripe-compatible REST API.
type StripeClient struct {
	name       string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Session]
	log        *slog.Logger
}

func NewStripeClient(cfg StripeConfig, log *slog.Logger) *StripeClient {
	if cfg.Name == "" {
		cfg.Name = "stripe"
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = circuitbreaker.DefaultConfig(cfg.Name)
	}
	cfg.Breaker.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, errProviderRejected)
	}
	return &StripeClient{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[*Session](cfg.Breaker, log),
		log:     log,
	}
}

func (c *StripeClient) Name() string {
	return c.name
}

func (c *StripeClient) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: %s is not configured", domain.ErrExternalServiceUnavailable, c.name)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	session, err := c.breaker.Execute(func() (*Session, error) {
		return c.createSession(ctx, req)
	})
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			c.log.WarnContext(ctx, "payment provider circuit open", slog.String("provider", c.name))
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrExternalServiceUnavailable, c.name, err)
	}
	return session, nil
}

type stripeSession struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) createSession(ctx context.Context, req SessionRequest) (*Session, error) {
	orderID := req.OrderID.String()
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", orderID)
	form.Set("metadata[order_id]", orderID)
	form.Set("payment_intent_data[metadata][order_id]", orderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// the order id makes retries of the same checkout return the same session
	httpReq.Header.Set("Idempotency-Key", orderID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr stripeError
		_ = json.Unmarshal(body, &apiErr)
		c.log.ErrorContext(ctx, "payment provider error",
			slog.String("provider", c.name),
			slog.Int("status", resp.StatusCode),
			slog.String("error_type", apiErr.Error.Type),
			slog.String("error", apiErr.Error.Message),
			slog.String("order_id", orderID))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d", errProviderRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	var s stripeSession
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == "" || s.URL == "" {
		return nil, errors.New("provider returned a session without id or url")
	}
	return &Session{ID: s.ID, URL: s.URL, ExpiresAt: s.ExpiresAt}, nil
}
