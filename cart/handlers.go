package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"vitrina/models"
	"vitrina/utils"
)

// API exposes the cart store over HTTP. One store is opened per request;
// the cart document in Mongo is the durable state between requests.
type API struct {
	Products *mongo.Collection
	Stocks   StockReader
	Persist  Persister
}

func NewAPI(products, carts *mongo.Collection) *API {
	return &API{
		Products: products,
		Stocks:   &SnapshotReader{Products: products},
		Persist:  &MongoPersister{Carts: carts},
	}
}

func (a *API) open(r *http.Request, w http.ResponseWriter) (*Store, context.Context, context.CancelFunc, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		cancel()
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, nil, nil, false
	}

	store, err := Open(ctx, userID, a.Stocks, a.Persist)
	if err != nil {
		cancel()
		log.Println("cart open error:", err)
		http.Error(w, "Could not load cart", http.StatusInternalServerError)
		return nil, nil, nil, false
	}
	return store, ctx, cancel, true
}

func (a *API) respondCart(w http.ResponseWriter, status int, store *Store) {
	utils.RespondWithJSON(w, status, utils.M{
		"lines":    store.Lines(),
		"subtotal": store.Subtotal(),
	})
}

// AddToCart upserts a line for the posted product id.
func (a *API) AddToCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ProductID == "" {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	store, ctx, cancel, ok := a.open(r, w)
	if !ok {
		return
	}
	defer cancel()

	var product models.Product
	err := a.Products.FindOne(ctx, bson.M{"productid": payload.ProductID}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Println("AddToCart product lookup error:", err)
		http.Error(w, "Failed to add to cart", http.StatusInternalServerError)
		return
	}

	if err := store.Add(ctx, product, payload.Quantity); err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			utils.RespondWithError(w, http.StatusConflict, "insufficient stock")
			return
		}
		log.Println("AddToCart error:", err)
		http.Error(w, "Failed to add to cart", http.StatusInternalServerError)
		return
	}

	a.respondCart(w, http.StatusCreated, store)
}

// GetCart returns the user's lines and derived subtotal.
func (a *API) GetCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	store, _, cancel, ok := a.open(r, w)
	if !ok {
		return
	}
	defer cancel()

	a.respondCart(w, http.StatusOK, store)
}

// UpdateQuantity clamps and sets the quantity of one line.
func (a *API) UpdateQuantity(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	store, ctx, cancel, ok := a.open(r, w)
	if !ok {
		return
	}
	defer cancel()

	if err := store.SetQuantity(ctx, ps.ByName("productid"), payload.Quantity); err != nil {
		log.Println("UpdateQuantity error:", err)
		http.Error(w, "Failed to update cart", http.StatusInternalServerError)
		return
	}

	a.respondCart(w, http.StatusOK, store)
}

// RemoveFromCart deletes one line unconditionally.
func (a *API) RemoveFromCart(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	store, ctx, cancel, ok := a.open(r, w)
	if !ok {
		return
	}
	defer cancel()

	if err := store.Remove(ctx, ps.ByName("productid")); err != nil {
		log.Println("RemoveFromCart error:", err)
		http.Error(w, "Failed to update cart", http.StatusInternalServerError)
		return
	}

	a.respondCart(w, http.StatusOK, store)
}

// ClearCart empties the cart, e.g. after order completion.
func (a *API) ClearCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	store, ctx, cancel, ok := a.open(r, w)
	if !ok {
		return
	}
	defer cancel()

	if err := store.Clear(ctx); err != nil {
		log.Println("ClearCart error:", err)
		http.Error(w, "Failed to clear cart", http.StatusInternalServerError)
		return
	}

	a.respondCart(w, http.StatusOK, store)
}
