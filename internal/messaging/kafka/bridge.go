package kafka

import (
	"fmt"

	"github.com/dcastellanos-dev/tienda-backend/internal/notify"
)

// eventPublisher — минимальный контракт producer'а для моста (для тестов).
type eventPublisher interface {
	PublishOrderEvent(event *OrderEvent) error
	PublishStockEvent(event *StockEvent) error
}

// Bridge транслирует внутренние события магазина в Kafka-топики.
// Реализует notify.Subscriber, подписывается на диспетчер как обычный
// потребитель и наследует его изоляцию ошибок.
type Bridge struct {
	publisher eventPublisher
}

// NewBridge создает мост между диспетчером событий и Kafka.
func NewBridge(producer *Producer) *Bridge {
	return &Bridge{publisher: producer}
}

func (b *Bridge) Name() string { return "kafka" }

// Handle переводит событие диспетчера в типизированное Kafka-событие.
func (b *Bridge) Handle(event notify.Event) error {
	switch event.Kind {
	case notify.EventOrderPlaced, notify.EventOrderUpdated, notify.EventOrderCancelled:
		return b.publisher.PublishOrderEvent(NewOrderEvent(
			EventType(event.Kind),
			payloadInt64(event.Payload, "order_id"),
			payloadInt64(event.Payload, "user_id"),
			payloadString(event.Payload, "status"),
			event.At,
			map[string]interface{}{"event_id": event.ID},
		))
	case notify.EventStockLow, notify.EventStockOut:
		return b.publisher.PublishStockEvent(NewStockEvent(
			EventType(event.Kind),
			payloadString(event.Payload, "sku"),
			payloadInt32(event.Payload, "remaining"),
			event.At,
		))
	default:
		return fmt.Errorf("no kafka mapping for event kind %q", event.Kind)
	}
}

func payloadInt64(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func payloadInt32(payload map[string]any, key string) int32 {
	return int32(payloadInt64(payload, key))
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
