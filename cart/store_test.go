package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrina/models"
)

type memPersister struct {
	saved map[string][]models.CartLine
	calls int
}

func newMemPersister() *memPersister {
	return &memPersister{saved: make(map[string][]models.CartLine)}
}

func (m *memPersister) Load(_ context.Context, userID string) ([]models.CartLine, error) {
	return m.saved[userID], nil
}

func (m *memPersister) Save(_ context.Context, userID string, lines []models.CartLine) error {
	cp := make([]models.CartLine, len(lines))
	copy(cp, lines)
	m.saved[userID] = cp
	m.calls++
	return nil
}

type memStocks struct {
	snaps map[string]models.StockSnapshot
}

func (m *memStocks) Snapshot(_ context.Context, productID string) (models.StockSnapshot, error) {
	return m.snaps[productID], nil
}

func limitedProduct(id string, price float64, stock int) models.Product {
	return models.Product{ProductID: id, Name: "Product " + id, Price: price, Stock: stock}
}

func openTestStore(t *testing.T, persist Persister, stocks StockReader) *Store {
	t.Helper()
	store, err := Open(context.Background(), "u1", stocks, persist)
	require.NoError(t, err)
	return store
}

func TestAddNewLineClampsToStock(t *testing.T) {
	persist := newMemPersister()
	store := openTestStore(t, persist, &memStocks{})

	err := store.Add(context.Background(), limitedProduct("p1", 10, 3), 5)
	require.NoError(t, err)

	lines := store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, lines, persist.saved["u1"])
}

func TestAddGrowingExistingLinePastStockFails(t *testing.T) {
	persist := newMemPersister()
	store := openTestStore(t, persist, &memStocks{})
	p := limitedProduct("p1", 10, 5)

	require.NoError(t, store.Add(context.Background(), p, 4))

	// 4 in cart + 3 more would exceed stock 5: reject, leave cart alone
	err := store.Add(context.Background(), p, 3)
	require.ErrorIs(t, err, ErrInsufficientStock)

	lines := store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)

	// growing within the ceiling still works
	require.NoError(t, store.Add(context.Background(), p, 1))
	assert.Equal(t, 5, store.Lines()[0].Quantity)
}

func TestAddOutOfStockProduct(t *testing.T) {
	store := openTestStore(t, newMemPersister(), &memStocks{})

	err := store.Add(context.Background(), limitedProduct("p1", 10, 0), 2)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Empty(t, store.Lines())
}

func TestAddUnlimitedProductNeverCapped(t *testing.T) {
	store := openTestStore(t, newMemPersister(), &memStocks{})
	p := models.Product{ProductID: "dl1", Name: "Download", Price: 4.5, IsUnlimited: true}

	require.NoError(t, store.Add(context.Background(), p, 50))
	require.NoError(t, store.Add(context.Background(), p, 50))

	lines := store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 100, lines[0].Quantity)
}

func TestAddQuantityBelowOneTreatedAsOne(t *testing.T) {
	store := openTestStore(t, newMemPersister(), &memStocks{})

	require.NoError(t, store.Add(context.Background(), limitedProduct("p1", 10, 5), 0))
	require.Len(t, store.Lines(), 1)
	assert.Equal(t, 1, store.Lines()[0].Quantity)
}

func TestSetQuantityClampsToSnapshot(t *testing.T) {
	stocks := &memStocks{snaps: map[string]models.StockSnapshot{
		"p1": {ProductID: "p1", Stock: 4},
	}}
	store := openTestStore(t, newMemPersister(), stocks)
	require.NoError(t, store.Add(context.Background(), limitedProduct("p1", 10, 4), 2))

	require.NoError(t, store.SetQuantity(context.Background(), "p1", 9))
	assert.Equal(t, 4, store.Lines()[0].Quantity)
}

func TestSetQuantityBelowOneIsNoop(t *testing.T) {
	stocks := &memStocks{snaps: map[string]models.StockSnapshot{
		"p1": {ProductID: "p1", Stock: 4},
	}}
	store := openTestStore(t, newMemPersister(), stocks)
	require.NoError(t, store.Add(context.Background(), limitedProduct("p1", 10, 4), 2))

	require.NoError(t, store.SetQuantity(context.Background(), "p1", 0))
	assert.Equal(t, 2, store.Lines()[0].Quantity)
}

func TestSetQuantityUnknownProductIsNoop(t *testing.T) {
	persist := newMemPersister()
	store := openTestStore(t, persist, &memStocks{})
	before := persist.calls

	require.NoError(t, store.SetQuantity(context.Background(), "nope", 3))
	assert.Equal(t, before, persist.calls)
}

func TestRemoveAndClear(t *testing.T) {
	persist := newMemPersister()
	store := openTestStore(t, persist, &memStocks{})
	require.NoError(t, store.Add(context.Background(), limitedProduct("p1", 10, 5), 1))
	require.NoError(t, store.Add(context.Background(), limitedProduct("p2", 20, 5), 1))

	require.NoError(t, store.Remove(context.Background(), "p1"))
	lines := store.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0].ProductID)

	require.NoError(t, store.Clear(context.Background()))
	assert.Empty(t, store.Lines())
	assert.Empty(t, persist.saved["u1"])
}

func TestSubtotalIsDerived(t *testing.T) {
	store := openTestStore(t, newMemPersister(), &memStocks{})
	require.NoError(t, store.Add(context.Background(), limitedProduct("p1", 10.50, 5), 2))
	require.NoError(t, store.Add(context.Background(), limitedProduct("p2", 3.25, 5), 4))

	assert.InDelta(t, 34.0, store.Subtotal(), 1e-9)
}

func TestOpenRehydratesPersistedCart(t *testing.T) {
	persist := newMemPersister()
	first := openTestStore(t, persist, &memStocks{})
	require.NoError(t, first.Add(context.Background(), limitedProduct("p1", 10, 5), 2))

	second := openTestStore(t, persist, &memStocks{})
	lines := second.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "p1", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestEveryMutationWritesThrough(t *testing.T) {
	persist := newMemPersister()
	store := openTestStore(t, persist, &memStocks{snaps: map[string]models.StockSnapshot{
		"p1": {ProductID: "p1", Stock: 10},
	}})

	require.NoError(t, store.Add(context.Background(), limitedProduct("p1", 10, 10), 1))
	require.NoError(t, store.SetQuantity(context.Background(), "p1", 3))
	require.NoError(t, store.Remove(context.Background(), "p1"))
	require.NoError(t, store.Clear(context.Background()))

	assert.Equal(t, 4, persist.calls)
}
