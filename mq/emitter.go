package mq

import (
	"context"
	"encoding/json"
	"log"

	"vitrina/rdx"
)

const eventsChannel = "store-events"

// Event is a fire-and-forget notification payload. Emitting one must never
// fail or roll back the operation that produced it.
type Event struct {
	Type    string  `json:"type"` // e.g. "order-finalized", "product-created"
	OrderID string  `json:"order_id,omitempty"`
	UserID  string  `json:"user_id,omitempty"`
	Email   string  `json:"email,omitempty"`
	Total   float64 `json:"total,omitempty"`
}

// Emit publishes the event to Redis. Failures are logged and swallowed.
func Emit(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Emit] failed to marshal %s event: %v", event.Type, err)
		return
	}
	if err := rdx.Conn.Publish(ctx, eventsChannel, data).Err(); err != nil {
		log.Printf("[Emit] failed to publish %s event: %v", event.Type, err)
	}
}

// StartMailWorker consumes order events and dispatches confirmation emails.
// Delivery is best-effort; a failed send is logged and dropped.
func StartMailWorker() {
	ctx := context.Background()
	sub := rdx.Conn.Subscribe(ctx, eventsChannel)
	ch := sub.Channel()

	log.Println("[MailWorker] listening for order events...")

	for msg := range ch {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("[MailWorker] failed to parse event: %v", err)
			continue
		}
		if event.Type != "order-finalized" {
			continue
		}
		if err := sendConfirmationEmail(event); err != nil {
			log.Printf("[MailWorker] confirmation email for order %s failed: %v", event.OrderID, err)
		}
	}
}

func sendConfirmationEmail(event Event) error {
	// SMTP relay is not configured in this deployment; log the dispatch so
	// the flow is observable end to end.
	log.Printf("[MailWorker] order %s confirmed, emailing %s (total %.2f)", event.OrderID, event.Email, event.Total)
	return nil
}
