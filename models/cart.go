package models

import "time"

// CartLine is one product/quantity pair inside a cart or an order.
type CartLine struct {
	ProductID string  `json:"productId" bson:"productid"`
	Name      string  `json:"name" bson:"name"`
	UnitPrice float64 `json:"unitPrice" bson:"unitprice"`
	Quantity  int     `json:"quantity" bson:"quantity"`
}

// Cart is the persisted working set of one user's intended purchases.
type Cart struct {
	UserID    string     `json:"userId" bson:"userid"`
	Lines     []CartLine `json:"lines" bson:"lines"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
}
