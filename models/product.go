package models

import "time"

// Product is a catalog item. Stock is authoritative only when IsUnlimited is
// false; unlimited products are always orderable and their stock field is
// never read or written by the reservation path.
type Product struct {
	ProductID   string    `json:"productId" bson:"productid"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Price       float64   `json:"price" bson:"price"` // unit price
	Stock       int       `json:"stock" bson:"stock"`
	IsUnlimited bool      `json:"isUnlimited" bson:"isUnlimited"`
	Unit        string    `json:"unit,omitempty" bson:"unit,omitempty"` // e.g. "buc", "ml", "set"
	Category    string    `json:"category,omitempty" bson:"category,omitempty"`
	ImagePath   string    `json:"imagePath,omitempty" bson:"imagePath,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// StockSnapshot is the advisory view of availability handed to cart clamping
// and product pages. The reservation transaction is the only authority.
type StockSnapshot struct {
	ProductID   string `json:"productId"`
	Stock       int    `json:"stock"`
	IsUnlimited bool   `json:"isUnlimited"`
}
