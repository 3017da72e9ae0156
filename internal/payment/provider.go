package payment

import (
	"context"
	"fmt"
	"net/url"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/google/uuid"
)

type SessionRequest struct {
	OrderID       uuid.UUID
	Amount        int64
	Currency      string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type Session struct {
	ID        string
	URL       string
	ExpiresAt int64
}

// HostedProvider creates hosted payment sessions. Failures are reported as
// domain.ErrExternalServiceUnavailable.
type HostedProvider interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// RedirectURL returns raw with an order_id query parameter added, so the storefront
// can find the order when the shopper comes back from the provider.
func RedirectURL(raw string, orderID uuid.UUID) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: redirect url must be an absolute http(s) url", domain.ErrInvalidState)
	}
	q := u.Query()
	q.Set("order_id", orderID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
