package orders

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"vitrina/globals"
	"vitrina/models"
	"vitrina/stripe"
	"vitrina/utils"
)

const currency = "ron"

// Handlers is the HTTP surface over the finalization service and the local
// payment gateway.
type Handlers struct {
	Service  *Service
	Gateway  *stripe.LocalGateway
	Products *mongo.Collection
}

// CreatePaymentIntent prices the posted cart from the catalog (client
// prices are ignored), attaches the order data as intent metadata, and
// returns the client secret.
func (h *Handlers) CreatePaymentIntent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		CartItems    []models.CartLine   `json:"cartItems"`
		ShippingInfo models.ShippingInfo `json:"shippingInfo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.CartItems) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "cart is empty or payload is invalid")
		return
	}

	var total float64
	priced := make([]models.CartLine, 0, len(payload.CartItems))
	for _, item := range payload.CartItems {
		if item.Quantity < 1 {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid quantity for product "+item.ProductID)
			return
		}
		var p models.Product
		err := h.Products.FindOne(ctx, bson.M{"productid": item.ProductID}).Decode(&p)
		if err == mongo.ErrNoDocuments {
			utils.RespondWithError(w, http.StatusUnprocessableEntity, "unknown product "+item.ProductID)
			return
		}
		if err != nil {
			log.Println("CreatePaymentIntent product lookup error:", err)
			utils.RespondWithError(w, http.StatusInternalServerError, "failed to price cart")
			return
		}
		priced = append(priced, models.CartLine{
			ProductID: p.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
		})
		total += p.Price * float64(item.Quantity)
	}

	itemsJSON, err := json.Marshal(priced)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to encode cart")
		return
	}
	shippingJSON, err := json.Marshal(payload.ShippingInfo)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to encode shipping info")
		return
	}

	metadata := map[string]string{
		"cartItems":    string(itemsJSON),
		"shippingInfo": string(shippingJSON),
	}
	if userID := utils.GetUserIDFromRequest(r); userID != "" {
		metadata["userId"] = userID
	}

	amount := int64(math.Round(total * 100))
	intent, err := h.Gateway.CreateIntent(ctx, amount, currency, metadata)
	if err != nil {
		log.Println("CreatePaymentIntent gateway error:", err)
		utils.RespondWithError(w, http.StatusBadGateway, "failed to create payment intent")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, utils.M{
		"intentId":     intent.ID,
		"clientSecret": intent.ClientSecret,
		"amount":       intent.Amount,
		"currency":     intent.Currency,
	})
}

// ConfirmPayment marks an intent succeeded. Stand-in for the processor's
// hosted payment element.
func (h *Handlers) ConfirmPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		ClientSecret string `json:"clientSecret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ClientSecret == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "client secret is required")
		return
	}

	intent, err := h.Gateway.ConfirmIntent(ctx, ps.ByName("intentid"), payload.ClientSecret)
	if err != nil {
		utils.RespondWithError(w, HTTPStatus(err), err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"intentId": intent.ID, "status": intent.Status})
}

// FinalizeOrder turns a succeeded payment into an order. Safe to retry.
func (h *Handlers) FinalizeOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var payload struct {
		PaymentIntentID string `json:"paymentIntentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	orderID, err := h.Service.Finalize(ctx, payload.PaymentIntentID)
	if err != nil {
		log.Printf("finalize %s failed: %v", payload.PaymentIntentID, err)
		utils.RespondWithError(w, HTTPStatus(err), err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "orderId": orderID})
}

// UpdateStock is the alternate entry point running only the reservation
// step for an already persisted order. A repeat call is a no-op success.
func (h *Handlers) UpdateStock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	orderID := ps.ByName("orderid")
	err := h.Service.ApplyStock(ctx, orderID)
	if err == ErrStockAlreadyApplied {
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"message": "stock already applied"})
		return
	}
	if err != nil {
		log.Printf("update-stock %s failed: %v", orderID, err)
		utils.RespondWithError(w, HTTPStatus(err), err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"message": "stock updated"})
}

// GetOrder returns one order to its owner or to an admin.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.Service.Orders.Get(ctx, ps.ByName("orderid"))
	if err != nil {
		utils.RespondWithError(w, HTTPStatus(err), err.Error())
		return
	}

	userID := utils.GetUserIDFromRequest(r)
	if order.UserID != userID && !isAdmin(r) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, order)
}

// MyOrders lists the requesting user's orders, newest first.
func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.Service.Orders.ListByUser(ctx, userID)
	if err != nil {
		log.Println("MyOrders error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// ListOrders is the admin view with paging and optional status filter.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	list, err := h.Service.Orders.List(ctx, utils.ParseQueryOptions(r))
	if err != nil {
		log.Println("ListOrders error:", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// UpdateOrderStatus applies an administrative lifecycle transition.
func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Status == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "status is required")
		return
	}

	orderID := ps.ByName("orderid")
	order, err := h.Service.Orders.Get(ctx, orderID)
	if err != nil {
		utils.RespondWithError(w, HTTPStatus(err), err.Error())
		return
	}
	if !CanTransition(order.Status, payload.Status) {
		utils.RespondWithError(w, http.StatusBadRequest, ErrInvalidTransition.Error())
		return
	}

	if err := h.Service.Orders.SetStatus(ctx, orderID, payload.Status); err != nil {
		utils.RespondWithError(w, HTTPStatus(err), err.Error())
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"orderId": orderID, "status": payload.Status})
}

func isAdmin(r *http.Request) bool {
	roles, ok := r.Context().Value(globals.RoleKey).([]string)
	if !ok {
		return false
	}
	return utils.Contains(roles, "admin")
}
