package orders

import "vitrina/models"

// Orders only move forward; completed and cancelled are terminal. A
// stock_failed order can be cancelled, or resumed to processing once an
// operator has reconciled inventory.
var transitions = map[string][]string{
	models.OrderStatusPending:     {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing:  {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:     {models.OrderStatusCompleted, models.OrderStatusCancelled},
	models.OrderStatusStockFailed: {models.OrderStatusProcessing, models.OrderStatusCancelled},
}

func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
