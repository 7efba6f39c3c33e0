package cart

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vitrina/models"
	"vitrina/rdx"
)

// MongoPersister stores one cart document per user.
type MongoPersister struct {
	Carts *mongo.Collection
}

func (m *MongoPersister) Load(ctx context.Context, userID string) ([]models.CartLine, error) {
	var c models.Cart
	err := m.Carts.FindOne(ctx, bson.M{"userid": userID}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.Lines, nil
}

func (m *MongoPersister) Save(ctx context.Context, userID string, lines []models.CartLine) error {
	doc := models.Cart{UserID: userID, Lines: lines, UpdatedAt: time.Now()}
	opts := options.Replace().SetUpsert(true)
	_, err := m.Carts.ReplaceOne(ctx, bson.M{"userid": userID}, doc, opts)
	return err
}

// SnapshotReader serves advisory stock figures, Redis-cached with a short
// TTL in front of the products collection. A missing product reads as
// out of stock rather than erroring, matching the cart's advisory contract.
type SnapshotReader struct {
	Products *mongo.Collection
}

func (r *SnapshotReader) Snapshot(ctx context.Context, productID string) (models.StockSnapshot, error) {
	if snap, ok := rdx.CachedStockSnapshot(productID); ok {
		return snap, nil
	}

	var p models.Product
	err := r.Products.FindOne(ctx, bson.M{"productid": productID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return models.StockSnapshot{ProductID: productID}, nil
	}
	if err != nil {
		return models.StockSnapshot{}, err
	}

	snap := models.StockSnapshot{ProductID: p.ProductID, Stock: p.Stock, IsUnlimited: p.IsUnlimited}
	// cache miss is tolerable, the snapshot is advisory anyway
	_ = rdx.CacheStockSnapshot(snap)
	return snap, nil
}
