package orders

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrina/models"
	"vitrina/mq"
	"vitrina/stripe"
	"vitrina/utils"
)

type fakeGateway struct {
	intents map[string]*stripe.Intent
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*stripe.Intent, error) {
	panic("not used")
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (*stripe.Intent, error) {
	intent, ok := g.intents[id]
	if !ok {
		return nil, stripe.ErrIntentNotFound
	}
	cp := *intent
	return &cp, nil
}

// fakeOrderStore enforces payment intent uniqueness under a lock, like the
// unique index does in Mongo.
type fakeOrderStore struct {
	mu       sync.Mutex
	byID     map[string]*models.Order
	byIntent map[string]string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		byID:     make(map[string]*models.Order),
		byIntent: make(map[string]string),
	}
}

func (s *fakeOrderStore) FindByPaymentIntent(_ context.Context, intentID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIntent[intentID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *fakeOrderStore) Get(_ context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.byID[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (s *fakeOrderStore) Insert(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byIntent[order.PaymentIntentID]; exists {
		return ErrDuplicatePaymentIntent
	}
	cp := *order
	s.byID[order.OrderID] = &cp
	s.byIntent[order.PaymentIntentID] = order.OrderID
	return nil
}

func (s *fakeOrderStore) SetStatus(_ context.Context, orderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.byID[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (s *fakeOrderStore) SetStockApplied(_ context.Context, orderID string, applied bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.byID[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.StockApplied = applied
	return nil
}

func (s *fakeOrderStore) ClaimStockApplied(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.byID[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.StockApplied {
		return false, nil
	}
	order.StockApplied = true
	return true, nil
}

func (s *fakeOrderStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, order := range s.byID {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) List(_ context.Context, _ utils.QueryOptions) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, order := range s.byID {
		out = append(out, *order)
	}
	return out, nil
}

// fakeProductStore stages writes and commits them only when the callback
// returns nil, matching the all-or-nothing contract of the Mongo session.
type fakeProductStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
}

func newFakeProductStore(products ...models.Product) *fakeProductStore {
	s := &fakeProductStore{products: make(map[string]*models.Product)}
	for _, p := range products {
		cp := p
		s.products[p.ProductID] = &cp
	}
	return s
}

func (s *fakeProductStore) RunStockTransaction(ctx context.Context, fn func(ctx context.Context, tx StockTxn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &fakeStockTxn{store: s, pending: make(map[string]int)}
	if err := fn(ctx, txn); err != nil {
		return err
	}
	for id, stock := range txn.pending {
		s.products[id].Stock = stock
	}
	return nil
}

func (s *fakeProductStore) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

type fakeStockTxn struct {
	store   *fakeProductStore
	pending map[string]int
}

func (t *fakeStockTxn) Product(_ context.Context, productID string) (*models.Product, error) {
	p, ok := t.store.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	if stock, staged := t.pending[productID]; staged {
		cp.Stock = stock
	}
	return &cp, nil
}

func (t *fakeStockTxn) SetStock(_ context.Context, productID string, stock int) error {
	if _, ok := t.store.products[productID]; !ok {
		return ErrProductNotFound
	}
	t.pending[productID] = stock
	return nil
}

type recordingAnnouncer struct {
	mu    sync.Mutex
	calls map[string][]int
}

func (a *recordingAnnouncer) StockChanged(productID string, remaining int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = make(map[string][]int)
	}
	a.calls[productID] = append(a.calls[productID], remaining)
}

func succeededIntent(t *testing.T, id string, amount int64, items []models.CartLine) *stripe.Intent {
	t.Helper()
	itemsJSON, err := json.Marshal(items)
	require.NoError(t, err)
	shippingJSON, err := json.Marshal(models.ShippingInfo{Name: "Ana Pop", Email: "ana@example.com", City: "Cluj"})
	require.NoError(t, err)

	return &stripe.Intent{
		ID:       id,
		Amount:   amount,
		Currency: "ron",
		Status:   stripe.StatusSucceeded,
		Metadata: map[string]string{
			"cartItems":    string(itemsJSON),
			"shippingInfo": string(shippingJSON),
			"userId":       "u1",
		},
		CreatedAt:   time.Now().Add(-time.Minute),
		ConfirmedAt: time.Now(),
	}
}

func newTestService(orders *fakeOrderStore, products *fakeProductStore, intents ...*stripe.Intent) *Service {
	gw := &fakeGateway{intents: make(map[string]*stripe.Intent)}
	for _, intent := range intents {
		gw.intents[intent.ID] = intent
	}
	return &Service{Gateway: gw, Orders: orders, Products: products}
}

func TestFinalizeCreatesOrderAndDecrementsStock(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 10})
	items := []models.CartLine{{ProductID: "p1", Name: "Mug", UnitPrice: 12.34, Quantity: 2}}
	announce := &recordingAnnouncer{}

	var notified []mq.Event
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 2468, items))
	svc.Announce = announce
	svc.Notify = func(event mq.Event) { notified = append(notified, event) }

	orderID, err := svc.Finalize(context.Background(), "pi_1")
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	order, err := store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "u1", order.UserID)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.True(t, order.StockApplied)
	assert.InDelta(t, 24.68, order.Total, 1e-9) // from the captured amount, not the client
	assert.Equal(t, "pi_1", order.PaymentIntentID)

	assert.Equal(t, 8, products.stock("p1"))
	assert.Equal(t, []int{8}, announce.calls["p1"])

	require.Len(t, notified, 1)
	assert.Equal(t, "order-finalized", notified[0].Type)
	assert.Equal(t, orderID, notified[0].OrderID)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 10})
	items := []models.CartLine{{ProductID: "p1", Quantity: 3}}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 300, items))

	first, err := svc.Finalize(context.Background(), "pi_1")
	require.NoError(t, err)

	second, err := svc.Finalize(context.Background(), "pi_1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 7, products.stock("p1"))
}

func TestFinalizeConcurrentDuplicates(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 10})
	items := []models.CartLine{{ProductID: "p1", Quantity: 2}}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 200, items))

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = svc.Finalize(context.Background(), "pi_1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 8, products.stock("p1"))
}

func TestFinalizeContentionOverSharedStock(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 3})
	items := []models.CartLine{{ProductID: "p1", Quantity: 2}}
	svc := newTestService(store, products,
		succeededIntent(t, "pi_a", 200, items),
		succeededIntent(t, "pi_b", 200, items),
	)

	// two distinct payments compete for the last units: stock covers one
	// order but not both
	intents := []string{"pi_a", "pi_b"}
	ids := make([]string, len(intents))
	errs := make([]error, len(intents))
	var wg sync.WaitGroup
	for i := range intents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = svc.Finalize(context.Background(), intents[i])
		}(i)
	}
	wg.Wait()

	var won, lost int
	for i := range intents {
		if errs[i] == nil {
			won++
			order, err := store.FindByPaymentIntent(context.Background(), intents[i])
			require.NoError(t, err)
			assert.Equal(t, ids[i], order.OrderID)
			assert.True(t, order.StockApplied)
		} else {
			lost++
			require.ErrorIs(t, errs[i], ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, products.stock("p1"))
}

func TestFinalizeRejectsUnpaidIntent(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 10})
	items := []models.CartLine{{ProductID: "p1", Quantity: 1}}
	intent := succeededIntent(t, "pi_1", 100, items)
	intent.Status = stripe.StatusRequiresPayment
	svc := newTestService(store, products, intent)

	_, err := svc.Finalize(context.Background(), "pi_1")
	require.ErrorIs(t, err, ErrPaymentNotSucceeded)

	_, err = store.FindByPaymentIntent(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Equal(t, 10, products.stock("p1"))
}

func TestFinalizeMissingPaymentRef(t *testing.T) {
	svc := newTestService(newFakeOrderStore(), newFakeProductStore())
	_, err := svc.Finalize(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingPaymentRef)
}

func TestFinalizeUnknownIntent(t *testing.T) {
	svc := newTestService(newFakeOrderStore(), newFakeProductStore())
	_, err := svc.Finalize(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, stripe.ErrIntentNotFound)
}

func TestFinalizeInsufficientStockMarksOrderStockFailed(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 1})
	items := []models.CartLine{{ProductID: "p1", Quantity: 3}}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 300, items))

	_, err := svc.Finalize(context.Background(), "pi_1")
	require.ErrorIs(t, err, ErrInsufficientStock)

	// payment succeeded, so the order stays for operator review
	order, ferr := store.FindByPaymentIntent(context.Background(), "pi_1")
	require.NoError(t, ferr)
	assert.Equal(t, models.OrderStatusStockFailed, order.Status)
	assert.False(t, order.StockApplied)
	assert.Equal(t, 1, products.stock("p1"))
}

func TestFinalizeAllOrNothingAcrossLines(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(
		models.Product{ProductID: "p1", Stock: 10},
		models.Product{ProductID: "p2", Stock: 1},
	)
	items := []models.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 5},
	}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 700, items))

	_, err := svc.Finalize(context.Background(), "pi_1")
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 10, products.stock("p1"))
	assert.Equal(t, 1, products.stock("p2"))
}

func TestFinalizeSkipsUnlimitedProducts(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(
		models.Product{ProductID: "dl1", IsUnlimited: true},
		models.Product{ProductID: "p1", Stock: 5},
	)
	items := []models.CartLine{
		{ProductID: "dl1", Quantity: 100},
		{ProductID: "p1", Quantity: 1},
	}
	announce := &recordingAnnouncer{}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 500, items))
	svc.Announce = announce

	_, err := svc.Finalize(context.Background(), "pi_1")
	require.NoError(t, err)

	assert.Equal(t, 0, products.stock("dl1"))
	assert.Equal(t, 4, products.stock("p1"))
	assert.NotContains(t, announce.calls, "dl1")
}

func TestFinalizeUnknownProduct(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore()
	items := []models.CartLine{{ProductID: "ghost", Quantity: 1}}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 100, items))

	_, err := svc.Finalize(context.Background(), "pi_1")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestFinalizeEmptyCartMetadata(t *testing.T) {
	store := newFakeOrderStore()
	intent := succeededIntent(t, "pi_1", 100, nil)
	svc := newTestService(store, newFakeProductStore(), intent)

	_, err := svc.Finalize(context.Background(), "pi_1")
	assert.Error(t, err)
}

func TestFinalizeStockFirstHappyPath(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 10})
	items := []models.CartLine{{ProductID: "p1", Quantity: 2}}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 200, items))
	svc.Ordering = StockFirst

	orderID, err := svc.Finalize(context.Background(), "pi_1")
	require.NoError(t, err)

	order, err := store.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.True(t, order.StockApplied)
	assert.Equal(t, 8, products.stock("p1"))
}

func TestFinalizeStockFirstConcurrentDuplicatesReleaseStock(t *testing.T) {
	store := newFakeOrderStore()
	// stock is high enough that every in-flight reservation fits before the
	// losers re-credit theirs
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 100})
	items := []models.CartLine{{ProductID: "p1", Quantity: 2}}
	svc := newTestService(store, products, succeededIntent(t, "pi_1", 200, items))
	svc.Ordering = StockFirst

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = svc.Finalize(context.Background(), "pi_1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	// losers re-credit their reservation, so exactly one decrement sticks
	assert.Equal(t, 98, products.stock("p1"))
}

func TestApplyStockRunsOnce(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 10})
	order := &models.Order{
		OrderID:         "o1",
		PaymentIntentID: "pi_1",
		Items:           []models.CartLine{{ProductID: "p1", Quantity: 4}},
		Status:          models.OrderStatusProcessing,
	}
	require.NoError(t, store.Insert(context.Background(), order))
	svc := newTestService(store, products)

	require.NoError(t, svc.ApplyStock(context.Background(), "o1"))
	assert.Equal(t, 6, products.stock("p1"))

	err := svc.ApplyStock(context.Background(), "o1")
	require.ErrorIs(t, err, ErrStockAlreadyApplied)
	assert.Equal(t, 6, products.stock("p1"))
}

func TestApplyStockReleasesClaimOnFailure(t *testing.T) {
	store := newFakeOrderStore()
	products := newFakeProductStore(models.Product{ProductID: "p1", Stock: 1})
	order := &models.Order{
		OrderID:         "o1",
		PaymentIntentID: "pi_1",
		Items:           []models.CartLine{{ProductID: "p1", Quantity: 4}},
		Status:          models.OrderStatusProcessing,
	}
	require.NoError(t, store.Insert(context.Background(), order))
	svc := newTestService(store, products)

	err := svc.ApplyStock(context.Background(), "o1")
	require.ErrorIs(t, err, ErrInsufficientStock)

	// claim was released, a later restock can still apply
	got, gerr := store.Get(context.Background(), "o1")
	require.NoError(t, gerr)
	assert.False(t, got.StockApplied)
}

func TestApplyStockUnknownOrder(t *testing.T) {
	svc := newTestService(newFakeOrderStore(), newFakeProductStore())
	err := svc.ApplyStock(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderFromIntentTimestamps(t *testing.T) {
	items := []models.CartLine{{ProductID: "p1", Quantity: 1}}
	intent := succeededIntent(t, "pi_1", 150, items)

	order, err := orderFromIntent(intent)
	require.NoError(t, err)
	assert.Equal(t, intent.ConfirmedAt, order.CreatedAt)
	assert.InDelta(t, 1.50, order.Total, 1e-9)

	intent.ConfirmedAt = time.Time{}
	order, err = orderFromIntent(intent)
	require.NoError(t, err)
	assert.Equal(t, intent.CreatedAt, order.CreatedAt)
}
