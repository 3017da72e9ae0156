package domain

import "errors"

// Error kinds. Specific errors wrap one of these so callers can classify with errors.Is.
var (
	ErrNotFound                   = errors.New("not found")
	ErrInvalidState               = errors.New("invalid state")
	ErrUnauthenticated            = errors.New("unauthenticated")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrExternalServiceUnavailable = errors.New("external service unavailable")
	ErrSignatureInvalid           = errors.New("signature invalid")
)

var (
	ErrCartNotFound       = wrap(ErrNotFound, "cart not found")
	ErrItemNotFound       = wrap(ErrNotFound, "cart item not found")
	ErrProductNotFound    = wrap(ErrNotFound, "product not found")
	ErrOrderNotFound      = wrap(ErrNotFound, "order not found")
	ErrCartEmpty          = wrap(ErrInvalidState, "cart is empty")
	ErrInvalidQuantity    = wrap(ErrInvalidState, "quantity must be between 1 and 9999")
	ErrProductUnavailable = wrap(ErrInvalidState, "product is not available")
	ErrMixedCurrency      = wrap(ErrInvalidState, "cart items use more than one currency")
	ErrUnknownStatus      = wrap(ErrInvalidState, "unknown order status")
	ErrUnknownPayment     = wrap(ErrInvalidState, "unknown payment status")
	ErrNothingToUpdate    = wrap(ErrInvalidState, "status or payment status is required")
	ErrCheckoutInProgress = wrap(ErrInvalidState, "a checkout for this cart is already in progress")

	ErrUnsignedPaymentEvent = wrap(ErrSignatureInvalid, "payment event for a hosted order is not signed by its provider")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
