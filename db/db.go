package db

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ProductsCollection       *mongo.Collection
	OrdersCollection         *mongo.Collection
	CartsCollection          *mongo.Collection
	UserCollection           *mongo.Collection
	PaymentIntentsCollection *mongo.Collection
	Client                   *mongo.Client
)

// Initialize MongoDB connection
func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	var err error
	Client, err = mongo.Connect(context.TODO(), options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	database := Client.Database("storedb")
	ProductsCollection = database.Collection("products")
	OrdersCollection = database.Collection("orders")
	CartsCollection = database.Collection("carts")
	UserCollection = database.Collection("users")
	PaymentIntentsCollection = database.Collection("payment_intents")
}

// InitIndexes creates the indexes finalization correctness depends on. The
// unique paymentIntentId index is what closes the idempotency-lookup race:
// two concurrent finalize calls for one payment cannot both insert.
func InitIndexes(ctx context.Context) error {
	orderIdxs := []mongo.IndexModel{
		{
			Keys:    bson.M{"paymentIntentId": 1},
			Options: options.Index().SetUnique(true).SetName("unique_payment_intent"),
		},
		{
			Keys:    bson.M{"userid": 1},
			Options: options.Index().SetName("orders_by_user"),
		},
	}
	if _, err := OrdersCollection.Indexes().CreateMany(ctx, orderIdxs); err != nil {
		return err
	}

	if _, err := ProductsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"productid": 1},
		Options: options.Index().SetUnique(true).SetName("unique_product_id"),
	}); err != nil {
		return err
	}

	_, err := UserCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"username": 1},
		Options: options.Index().SetUnique(true).SetName("unique_username"),
	})
	return err
}

// IsDuplicateKeyError reports whether a Mongo write failed on a unique index.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(mongo.WriteException); ok {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}
