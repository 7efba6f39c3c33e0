package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"vitrina/models"
	"vitrina/mq"
	"vitrina/stripe"
	"vitrina/utils"
)

// Ordering picks which of the order write and the stock transaction runs
// first. The two cannot share one atomic commit here (the payment processor
// sits between them), so each mode compensates its own failure half.
type Ordering int

const (
	// OrderFirst persists the order, then reserves stock. A reservation
	// failure leaves the order marked stock_failed for operator review.
	OrderFirst Ordering = iota
	// StockFirst reserves stock, then persists the order. Losing the
	// insert race to a concurrent finalize re-credits the stock.
	StockFirst
)

func OrderingFromEnv() Ordering {
	if os.Getenv("ORDER_FINALIZE_ORDERING") == "stock-first" {
		return StockFirst
	}
	return OrderFirst
}

// Service turns one succeeded payment into exactly one order and one stock
// decrement. Stateless; safe for concurrent use.
type Service struct {
	Gateway  stripe.Gateway
	Orders   OrderStore
	Products ProductStore
	Ordering Ordering

	// Announce and Notify are optional fire-and-forget hooks; neither can
	// fail or roll back a finalization.
	Announce Announcer
	Notify   func(event mq.Event)
}

// Finalize is idempotent on the payment intent id: retries and duplicate
// invocations converge on the same order id with a single stock decrement.
func (s *Service) Finalize(ctx context.Context, intentID string) (string, error) {
	if intentID == "" {
		return "", ErrMissingPaymentRef
	}

	// Fast path: already finalized, return without side effects.
	existing, err := s.Orders.FindByPaymentIntent(ctx, intentID)
	if err == nil {
		return existing.OrderID, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return "", err
	}

	// Authoritative state lives at the processor, never in the request.
	intent, err := s.Gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return "", err
	}
	if intent.Status != stripe.StatusSucceeded {
		return "", fmt.Errorf("intent %s is %q: %w", intent.ID, intent.Status, ErrPaymentNotSucceeded)
	}

	order, err := orderFromIntent(intent)
	if err != nil {
		return "", err
	}

	if s.Ordering == StockFirst {
		return s.finalizeStockFirst(ctx, order)
	}
	return s.finalizeOrderFirst(ctx, order)
}

func (s *Service) finalizeOrderFirst(ctx context.Context, order *models.Order) (string, error) {
	if err := s.Orders.Insert(ctx, order); err != nil {
		if errors.Is(err, ErrDuplicatePaymentIntent) {
			// Lost the insert race; the winner owns the stock decrement.
			winner, ferr := s.Orders.FindByPaymentIntent(ctx, order.PaymentIntentID)
			if ferr != nil {
				return "", ferr
			}
			return winner.OrderID, nil
		}
		return "", err
	}

	if err := s.reserveStock(ctx, order.Items); err != nil {
		if serr := s.Orders.SetStatus(ctx, order.OrderID, models.OrderStatusStockFailed); serr != nil {
			log.Printf("order %s: stock reservation failed and marking stock_failed failed too: %v", order.OrderID, serr)
		}
		return "", err
	}
	if err := s.Orders.SetStockApplied(ctx, order.OrderID, true); err != nil {
		log.Printf("order %s: failed to record stock application: %v", order.OrderID, err)
	}

	s.notifyFinalized(order)
	return order.OrderID, nil
}

func (s *Service) finalizeStockFirst(ctx context.Context, order *models.Order) (string, error) {
	if err := s.reserveStock(ctx, order.Items); err != nil {
		return "", err
	}

	order.StockApplied = true
	if err := s.Orders.Insert(ctx, order); err != nil {
		// Give the stock back before reporting anything else.
		if rerr := s.releaseStock(ctx, order.Items); rerr != nil {
			log.Printf("order %s: stock release after failed insert also failed: %v", order.OrderID, rerr)
		}
		if errors.Is(err, ErrDuplicatePaymentIntent) {
			winner, ferr := s.Orders.FindByPaymentIntent(ctx, order.PaymentIntentID)
			if ferr != nil {
				return "", ferr
			}
			return winner.OrderID, nil
		}
		return "", err
	}

	s.notifyFinalized(order)
	return order.OrderID, nil
}

// ApplyStock runs only the reservation step against an already persisted
// order, at most once per order. The claim is a compare-and-set so two
// concurrent calls cannot both decrement.
func (s *Service) ApplyStock(ctx context.Context, orderID string) error {
	order, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.StockApplied {
		return ErrStockAlreadyApplied
	}

	claimed, err := s.Orders.ClaimStockApplied(ctx, orderID)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrStockAlreadyApplied
	}

	if err := s.reserveStock(ctx, order.Items); err != nil {
		if uerr := s.Orders.SetStockApplied(ctx, orderID, false); uerr != nil {
			log.Printf("order %s: releasing stock claim failed: %v", orderID, uerr)
		}
		return err
	}
	return nil
}

// reserveStock validates and decrements every stock-tracked line inside a
// single transaction. Unlimited products are skipped entirely; any failure
// aborts every staged decrement.
func (s *Service) reserveStock(ctx context.Context, items []models.CartLine) error {
	var changed []models.StockSnapshot
	err := s.Products.RunStockTransaction(ctx, func(ctx context.Context, tx StockTxn) error {
		changed = changed[:0] // the engine may retry the callback
		for _, item := range items {
			p, err := tx.Product(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if p.IsUnlimited {
				continue
			}
			newStock := p.Stock - item.Quantity
			if newStock < 0 {
				return fmt.Errorf("product %s: %w", item.ProductID, ErrInsufficientStock)
			}
			if err := tx.SetStock(ctx, item.ProductID, newStock); err != nil {
				return err
			}
			changed = append(changed, models.StockSnapshot{ProductID: item.ProductID, Stock: newStock})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.Announce != nil {
		for _, snap := range changed {
			s.Announce.StockChanged(snap.ProductID, snap.Stock)
		}
	}
	return nil
}

// releaseStock re-credits the lines of an order whose persistence failed
// after a successful reservation (StockFirst compensation path).
func (s *Service) releaseStock(ctx context.Context, items []models.CartLine) error {
	return s.Products.RunStockTransaction(ctx, func(ctx context.Context, tx StockTxn) error {
		for _, item := range items {
			p, err := tx.Product(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if p.IsUnlimited {
				continue
			}
			if err := tx.SetStock(ctx, item.ProductID, p.Stock+item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) notifyFinalized(order *models.Order) {
	if s.Notify == nil {
		return
	}
	s.Notify(mq.Event{
		Type:    "order-finalized",
		OrderID: order.OrderID,
		UserID:  order.UserID,
		Email:   order.ShippingInfo.Email,
		Total:   order.Total,
	})
}

// orderFromIntent reconstructs the order from metadata attached at intent
// creation. Total comes from the captured amount, createdAt from the
// intent's own timestamps; neither is ever taken from the client.
func orderFromIntent(intent *stripe.Intent) (*models.Order, error) {
	var items []models.CartLine
	if raw := intent.Metadata["cartItems"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("decode cart items metadata: %w", err)
		}
	}
	if len(items) == 0 {
		return nil, errors.New("payment intent carries no cart items")
	}

	var shipping models.ShippingInfo
	if raw := intent.Metadata["shippingInfo"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &shipping); err != nil {
			return nil, fmt.Errorf("decode shipping metadata: %w", err)
		}
	}

	createdAt := intent.ConfirmedAt
	if createdAt.IsZero() {
		createdAt = intent.CreatedAt
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &models.Order{
		OrderID:         utils.NewID("o"),
		UserID:          intent.Metadata["userId"],
		ShippingInfo:    shipping,
		Items:           items,
		Total:           float64(intent.Amount) / 100, // amount is in minor units
		PaymentIntentID: intent.ID,
		PaymentStatus:   intent.Status,
		Status:          models.OrderStatusProcessing,
		CreatedAt:       createdAt,
		UpdatedAt:       time.Now(),
	}, nil
}
