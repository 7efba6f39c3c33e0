package orders

import (
	"errors"
	"net/http"

	"vitrina/stripe"
)

var (
	// ErrInsufficientStock aborts the whole reservation transaction; no
	// line of the order is decremented.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPaymentNotSucceeded means the retrieved intent is not in its
	// succeeded terminal state; the order must not be treated as placed.
	ErrPaymentNotSucceeded = errors.New("payment not succeeded")
	// ErrProductNotFound inside the reservation transaction is a data
	// integrity violation: the order references a product that is gone.
	ErrProductNotFound = errors.New("product not found")

	ErrOrderNotFound          = errors.New("order not found")
	ErrDuplicatePaymentIntent = errors.New("order already exists for payment intent")
	ErrMissingPaymentRef      = errors.New("payment reference is required")
	ErrStockAlreadyApplied    = errors.New("stock already applied for order")
	ErrInvalidTransition      = errors.New("illegal order status transition")
)

// HTTPStatus maps service errors onto response codes. Anything unmapped is
// a 500 and safe to retry thanks to the idempotency guard in Finalize.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, ErrPaymentNotSucceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrProductNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, stripe.ErrIntentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingPaymentRef), errors.Is(err, ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
