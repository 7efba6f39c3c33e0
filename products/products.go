package products

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vitrina/db"
	"vitrina/models"
	"vitrina/mq"
	"vitrina/rdx"
	"vitrina/utils"
)

type productInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	IsUnlimited bool    `json:"isUnlimited"`
	Unit        string  `json:"unit"`
	Category    string  `json:"category"`
}

func (in *productInput) validate() string {
	if in.Name == "" {
		return "name is required"
	}
	if in.Price <= 0 {
		return "price must be positive"
	}
	if !in.IsUnlimited && in.Stock < 0 {
		return "stock cannot be negative"
	}
	return ""
}

// CreateProduct adds a catalog item. Admin only (gated in routes).
func CreateProduct(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var in productInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if msg := in.validate(); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now()
	product := models.Product{
		ProductID:   utils.NewID("p"),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsUnlimited: in.IsUnlimited,
		Unit:        in.Unit,
		Category:    in.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if product.IsUnlimited {
		product.Stock = 0
	}

	if _, err := db.ProductsCollection.InsertOne(ctx, product); err != nil {
		log.Println("CreateProduct insert error:", err)
		http.Error(w, "Failed to create product", http.StatusInternalServerError)
		return
	}

	mq.Emit(ctx, mq.Event{Type: "product-created", UserID: utils.GetUserIDFromRequest(r)})
	utils.RespondWithJSON(w, http.StatusCreated, product)
}

// UpdateProduct patches the mutable fields of a product. Stock edits here
// are administrative restocks; order finalization is the only other stock
// writer and goes through its own transaction.
func UpdateProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var in productInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if msg := in.validate(); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	productID := ps.ByName("productid")
	update := bson.M{"$set": bson.M{
		"name":        in.Name,
		"description": in.Description,
		"price":       in.Price,
		"stock":       in.Stock,
		"isUnlimited": in.IsUnlimited,
		"unit":        in.Unit,
		"category":    in.Category,
		"updatedAt":   time.Now(),
	}}

	res, err := db.ProductsCollection.UpdateOne(ctx, bson.M{"productid": productID}, update)
	if err != nil {
		log.Println("UpdateProduct error:", err)
		http.Error(w, "Failed to update product", http.StatusInternalServerError)
		return
	}
	if res.MatchedCount == 0 {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}

	rdx.DropStockSnapshot(productID)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"productId": productID, "status": "updated"})
}

// DeleteProduct removes a catalog item. Existing orders keep their copied
// line data; future finalizations referencing it will fail ProductNotFound.
func DeleteProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID := ps.ByName("productid")
	res, err := db.ProductsCollection.DeleteOne(ctx, bson.M{"productid": productID})
	if err != nil {
		log.Println("DeleteProduct error:", err)
		http.Error(w, "Failed to delete product", http.StatusInternalServerError)
		return
	}
	if res.DeletedCount == 0 {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}

	rdx.DropStockSnapshot(productID)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"productId": productID, "status": "deleted"})
}

// GetProduct returns one catalog item.
func GetProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var product models.Product
	err := db.ProductsCollection.FindOne(ctx, bson.M{"productid": ps.ByName("productid")}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Println("GetProduct error:", err)
		http.Error(w, "Failed to load product", http.StatusInternalServerError)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, product)
}

// ListProducts returns the catalog with optional category filter and name
// search, paged.
func ListProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	opts := utils.ParseQueryOptions(r)
	filter := bson.M{}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}
	if opts.Search != "" {
		filter["name"] = bson.M{"$regex": opts.Search, "$options": "i"}
	}

	findOpts := options.Find().
		SetSort(bson.M{"createdAt": -1}).
		SetSkip(int64((opts.Page - 1) * opts.Limit)).
		SetLimit(int64(opts.Limit))

	cursor, err := db.ProductsCollection.Find(ctx, filter, findOpts)
	if err != nil {
		log.Println("ListProducts error:", err)
		http.Error(w, "Failed to list products", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var list []models.Product
	if err := cursor.All(ctx, &list); err != nil {
		log.Println("ListProducts cursor error:", err)
		http.Error(w, "Failed to read products", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []models.Product{}
	}

	utils.RespondWithJSON(w, http.StatusOK, list)
}

// GetStock serves the advisory snapshot the cart uses for clamping.
func GetStock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	productID := ps.ByName("productid")
	if snap, ok := rdx.CachedStockSnapshot(productID); ok {
		utils.RespondWithJSON(w, http.StatusOK, snap)
		return
	}

	var product models.Product
	err := db.ProductsCollection.FindOne(ctx, bson.M{"productid": productID}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		http.Error(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Println("GetStock error:", err)
		http.Error(w, "Failed to load stock", http.StatusInternalServerError)
		return
	}

	snap := models.StockSnapshot{
		ProductID:   product.ProductID,
		Stock:       product.Stock,
		IsUnlimited: product.IsUnlimited,
	}
	_ = rdx.CacheStockSnapshot(snap)
	utils.RespondWithJSON(w, http.StatusOK, snap)
}
