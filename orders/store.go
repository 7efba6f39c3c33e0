package orders

import (
	"context"

	"vitrina/models"
	"vitrina/utils"
)

// OrderStore is the persistence boundary for orders. Implementations must
// enforce uniqueness of PaymentIntentID on Insert and report a violation as
// ErrDuplicatePaymentIntent; that constraint is what makes Finalize safe
// against concurrent duplicate calls.
type OrderStore interface {
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	Get(ctx context.Context, orderID string) (*models.Order, error)
	Insert(ctx context.Context, order *models.Order) error
	SetStatus(ctx context.Context, orderID, status string) error
	SetStockApplied(ctx context.Context, orderID string, applied bool) error
	// ClaimStockApplied flips stockApplied false→true atomically and
	// reports whether this caller won the claim.
	ClaimStockApplied(ctx context.Context, orderID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	List(ctx context.Context, opts utils.QueryOptions) ([]models.Order, error)
}

// StockTxn is the transactional view of the products collection handed to
// the reservation callback. Reads and writes through it commit or abort as
// one unit.
type StockTxn interface {
	Product(ctx context.Context, productID string) (*models.Product, error)
	SetStock(ctx context.Context, productID string, stock int) error
}

// ProductStore runs the reservation callback with serializable isolation
// over the touched product records. The callback may be invoked more than
// once if the underlying engine retries on write conflict.
type ProductStore interface {
	RunStockTransaction(ctx context.Context, fn func(ctx context.Context, tx StockTxn) error) error
}

// Announcer receives post-commit stock levels, e.g. for live product pages.
type Announcer interface {
	StockChanged(productID string, remaining int)
}
