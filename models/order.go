package models

import "time"

// Order lifecycle states. Orders move forward through
// pending → processing → shipped → completed, or sideways to cancelled.
// StockFailed marks an order whose payment settled but whose stock
// reservation aborted; it needs operator attention.
const (
	OrderStatusPending     = "pending"
	OrderStatusProcessing  = "processing"
	OrderStatusShipped     = "shipped"
	OrderStatusCompleted   = "completed"
	OrderStatusCancelled   = "cancelled"
	OrderStatusStockFailed = "stock_failed"
)

type ShippingInfo struct {
	Name       string `json:"name" bson:"name"`
	Email      string `json:"email" bson:"email"`
	Address    string `json:"address" bson:"address"`
	City       string `json:"city" bson:"city"`
	PostalCode string `json:"postalCode" bson:"postalcode"`
}

// Order is a finalized purchase. At most one order may exist per
// PaymentIntentID; the orders collection carries a unique index on it.
type Order struct {
	OrderID         string       `json:"orderId" bson:"orderid"`
	UserID          string       `json:"userId,omitempty" bson:"userid,omitempty"`
	ShippingInfo    ShippingInfo `json:"shippingInfo" bson:"shippinginfo"`
	Items           []CartLine   `json:"items" bson:"items"`
	Total           float64      `json:"total" bson:"total"`
	PaymentIntentID string       `json:"paymentIntentId" bson:"paymentIntentId"`
	PaymentStatus   string       `json:"paymentStatus" bson:"paymentstatus"`
	Status          string       `json:"status" bson:"status"`
	StockApplied    bool         `json:"stockApplied" bson:"stockapplied"`
	CreatedAt       time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt" bson:"updatedAt"`
}
