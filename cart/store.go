package cart

import (
	"context"
	"errors"

	"vitrina/models"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// Persister is the durable home of a user's cart. The store writes through
// on every mutation and rehydrates on open.
type Persister interface {
	Load(ctx context.Context, userID string) ([]models.CartLine, error)
	Save(ctx context.Context, userID string, lines []models.CartLine) error
}

// StockReader serves advisory stock snapshots for quantity clamping. The
// figures are best-effort; finalization re-validates inside the reservation
// transaction.
type StockReader interface {
	Snapshot(ctx context.Context, productID string) (models.StockSnapshot, error)
}

// Store holds one user's working set of intended purchases and keeps every
// line under the known stock ceiling. Mutations are serial per user: one
// request mutates one cart at a time, so the store itself carries no locks.
type Store struct {
	userID  string
	lines   []models.CartLine
	stocks  StockReader
	persist Persister
}

// Open rehydrates the user's persisted cart.
func Open(ctx context.Context, userID string, stocks StockReader, persist Persister) (*Store, error) {
	lines, err := persist.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Store{userID: userID, lines: lines, stocks: stocks, persist: persist}, nil
}

// Add upserts a line for the product. Growing an existing line past the
// product's stock is rejected outright with ErrInsufficientStock and leaves
// the cart untouched; a fresh line is clamped to the available maximum.
// Unlimited products are never capped.
func (s *Store) Add(ctx context.Context, p models.Product, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	for i := range s.lines {
		if s.lines[i].ProductID != p.ProductID {
			continue
		}
		proposed := s.lines[i].Quantity + quantity
		if !p.IsUnlimited && proposed > p.Stock {
			return ErrInsufficientStock
		}
		s.lines[i].Quantity = proposed
		return s.save(ctx)
	}

	if !p.IsUnlimited && quantity > p.Stock {
		quantity = p.Stock
	}
	if quantity < 1 {
		// product is out of stock, nothing to insert
		return ErrInsufficientStock
	}

	s.lines = append(s.lines, models.CartLine{
		ProductID: p.ProductID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  quantity,
	})
	return s.save(ctx)
}

// SetQuantity clamps n to [1, stock] for stock-tracked products; unlimited
// products only get the lower bound. Unknown product ids are a no-op.
func (s *Store) SetQuantity(ctx context.Context, productID string, n int) error {
	for i := range s.lines {
		if s.lines[i].ProductID != productID {
			continue
		}
		snap, err := s.stocks.Snapshot(ctx, productID)
		if err != nil {
			return err
		}
		if !snap.IsUnlimited && n > snap.Stock {
			n = snap.Stock
		}
		if n < 1 {
			return nil
		}
		s.lines[i].Quantity = n
		return s.save(ctx)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, productID string) error {
	kept := s.lines[:0]
	for _, line := range s.lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	s.lines = kept
	return s.save(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	s.lines = nil
	return s.save(ctx)
}

// Subtotal is derived, never persisted.
func (s *Store) Subtotal() float64 {
	var sum float64
	for _, line := range s.lines {
		sum += line.UnitPrice * float64(line.Quantity)
	}
	return sum
}

// Lines returns a copy so callers cannot bypass the clamping rules.
func (s *Store) Lines() []models.CartLine {
	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) save(ctx context.Context) error {
	return s.persist.Save(ctx, s.userID, s.lines)
}
