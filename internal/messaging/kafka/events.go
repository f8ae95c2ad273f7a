package kafka

import (
	"time"
)

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderPlaced    EventType = "order.placed"
	EventTypeOrderUpdated   EventType = "order.updated"
	EventTypeOrderCancelled EventType = "order.cancelled"

	// Stock события
	EventTypeStockLow EventType = "stock.low"
	EventTypeStockOut EventType = "stock.out"
)

// Topics для Kafka
const (
	TopicOrderEvents = "tienda.order.events"
	TopicStockEvents = "tienda.stock.events"
)

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   int64                  `json:"order_id"`
	UserID    int64                  `json:"user_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StockEvent представляет событие остатка позиции
type StockEvent struct {
	EventType EventType `json:"event_type"`
	SKU       string    `json:"sku"`
	Remaining int32     `json:"remaining"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOrderEvent создает событие заказа. Нулевое время at заменяется текущим.
func NewOrderEvent(eventType EventType, orderID, userID int64, status string, at time.Time, metadata map[string]interface{}) *OrderEvent {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		UserID:    userID,
		Status:    status,
		Timestamp: at,
		Metadata:  metadata,
	}
}

// NewStockEvent создает событие остатка. Нулевое время at заменяется текущим.
func NewStockEvent(eventType EventType, sku string, remaining int32, at time.Time) *StockEvent {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &StockEvent{
		EventType: eventType,
		SKU:       sku,
		Remaining: remaining,
		Timestamp: at,
	}
}
