// Package stripe is a local stand-in for the hosted payment processor. It
// exposes the two operations the storefront depends on, create and retrieve,
// plus a confirm hook the dev checkout page drives instead of a hosted
// payment element.
package stripe

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"vitrina/utils"
)

// Terminal and intermediate intent states, mirroring the processor's wire
// values. Finalization accepts only StatusSucceeded.
const (
	StatusRequiresPayment = "requires_payment_method"
	StatusProcessing      = "processing"
	StatusSucceeded       = "succeeded"
	StatusCanceled        = "canceled"
)

var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is a payment intent. Amount is in minor units (bani/cents).
type Intent struct {
	ID           string            `json:"id" bson:"_id"`
	ClientSecret string            `json:"clientSecret" bson:"clientsecret"`
	Amount       int64             `json:"amount" bson:"amount"`
	Currency     string            `json:"currency" bson:"currency"`
	Status       string            `json:"status" bson:"status"`
	Metadata     map[string]string `json:"metadata" bson:"metadata"`
	CreatedAt    time.Time         `json:"createdAt" bson:"createdAt"`
	ConfirmedAt  time.Time         `json:"confirmedAt,omitempty" bson:"confirmedAt,omitempty"`
}

// Gateway is the processor boundary. The finalizer trusts only what
// RetrieveIntent returns, never client-asserted state.
type Gateway interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}

// LocalGateway persists intents in Mongo so they survive restarts.
type LocalGateway struct {
	Intents *mongo.Collection
}

func NewLocalGateway(intents *mongo.Collection) *LocalGateway {
	return &LocalGateway{Intents: intents}
}

func (g *LocalGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	intent := &Intent{
		ID:        utils.NewID("pi_"),
		Amount:    amount,
		Currency:  currency,
		Status:    StatusRequiresPayment,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	intent.ClientSecret = intent.ID + "_secret_" + utils.NewID("")

	if _, err := g.Intents.InsertOne(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

func (g *LocalGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	var intent Intent
	err := g.Intents.FindOne(ctx, bson.M{"_id": id}).Decode(&intent)
	if err == mongo.ErrNoDocuments {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// ConfirmIntent marks an intent succeeded. In production this transition
// belongs to the processor's hosted element / webhook, not to us. Confirming
// an intent that already succeeded with the same secret is an idempotent
// success, so a client retrying after a lost response converges.
func (g *LocalGateway) ConfirmIntent(ctx context.Context, id, clientSecret string) (*Intent, error) {
	res := g.Intents.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "clientsecret": clientSecret, "status": StatusRequiresPayment},
		bson.M{"$set": bson.M{"status": StatusSucceeded, "confirmedAt": time.Now()}},
	)
	if res.Err() == mongo.ErrNoDocuments {
		intent, err := g.RetrieveIntent(ctx, id)
		if err != nil {
			return nil, err
		}
		if ConfirmedWithSecret(intent, clientSecret) {
			return intent, nil
		}
		return nil, ErrIntentNotFound
	}
	if res.Err() != nil {
		return nil, res.Err()
	}
	return g.RetrieveIntent(ctx, id)
}

// ConfirmedWithSecret reports whether a confirm call for this intent can be
// answered as an idempotent success: it already succeeded and the caller
// holds the matching client secret.
func ConfirmedWithSecret(intent *Intent, clientSecret string) bool {
	if intent == nil || clientSecret == "" {
		return false
	}
	return intent.Status == StatusSucceeded && intent.ClientSecret == clientSecret
}
