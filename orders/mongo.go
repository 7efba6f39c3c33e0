package orders

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vitrina/db"
	"vitrina/models"
	"vitrina/utils"
)

// MongoOrderStore persists orders. The collection carries a unique index on
// paymentIntentId (created in db.InitIndexes).
type MongoOrderStore struct {
	Col *mongo.Collection
}

func (s *MongoOrderStore) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := s.Col.FindOne(ctx, bson.M{"paymentIntentId": intentID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *MongoOrderStore) Get(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.Col.FindOne(ctx, bson.M{"orderid": orderID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *MongoOrderStore) Insert(ctx context.Context, order *models.Order) error {
	_, err := s.Col.InsertOne(ctx, order)
	if db.IsDuplicateKeyError(err) {
		return ErrDuplicatePaymentIntent
	}
	return err
}

func (s *MongoOrderStore) SetStatus(ctx context.Context, orderID, status string) error {
	res, err := s.Col.UpdateOne(ctx,
		bson.M{"orderid": orderID},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *MongoOrderStore) SetStockApplied(ctx context.Context, orderID string, applied bool) error {
	res, err := s.Col.UpdateOne(ctx,
		bson.M{"orderid": orderID},
		bson.M{"$set": bson.M{"stockapplied": applied, "updatedAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *MongoOrderStore) ClaimStockApplied(ctx context.Context, orderID string) (bool, error) {
	res, err := s.Col.UpdateOne(ctx,
		bson.M{"orderid": orderID, "stockapplied": false},
		bson.M{"$set": bson.M{"stockapplied": true, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *MongoOrderStore) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.M{"createdAt": -1})
	cursor, err := s.Col.Find(ctx, bson.M{"userid": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.Order
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoOrderStore) List(ctx context.Context, opts utils.QueryOptions) ([]models.Order, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = opts.Status
	}
	findOpts := options.Find().
		SetSort(bson.M{"createdAt": -1}).
		SetSkip(int64((opts.Page - 1) * opts.Limit)).
		SetLimit(int64(opts.Limit))

	cursor, err := s.Col.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.Order
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MongoProductStore runs stock reservations inside a Mongo session
// transaction, giving the read-then-conditional-write isolation the
// reservation protocol requires.
type MongoProductStore struct {
	Client   *mongo.Client
	Products *mongo.Collection
}

func (s *MongoProductStore) RunStockTransaction(ctx context.Context, fn func(ctx context.Context, tx StockTxn) error) error {
	session, err := s.Client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoStockTxn{col: s.Products})
	})
	return err
}

type mongoStockTxn struct {
	col *mongo.Collection
}

func (t *mongoStockTxn) Product(ctx context.Context, productID string) (*models.Product, error) {
	var p models.Product
	err := t.col.FindOne(ctx, bson.M{"productid": productID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *mongoStockTxn) SetStock(ctx context.Context, productID string, stock int) error {
	res, err := t.col.UpdateOne(ctx,
		bson.M{"productid": productID},
		bson.M{"$set": bson.M{"stock": stock, "updatedAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	return nil
}
