package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/notify"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := &Producer{
		sync:   mockProducer,
		logger: log.WithField("component", "kafka-producer-test"),
	}
	return producer, mockProducer
}

func TestProducer_PublishOrderEvent(t *testing.T) {
	producer, mockProducer := newMockedProducer(t)

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewOrderEvent(EventTypeOrderPlaced, 42, 7, "pending", time.Time{}, map[string]interface{}{
		"total_minor": int64(5000),
	})

	if err := producer.PublishOrderEvent(event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishStockEvent_Error(t *testing.T) {
	producer, mockProducer := newMockedProducer(t)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewStockEvent(EventTypeStockOut, "X-1", 0, time.Time{})

	if err := producer.PublishStockEvent(event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewOrderEvent(t *testing.T) {
	event := NewOrderEvent(EventTypeOrderCancelled, 42, 7, "cancelled", time.Time{}, map[string]interface{}{
		"reason": "user request",
	})

	if event.EventType != EventTypeOrderCancelled {
		t.Errorf("expected event type %s, got %s", EventTypeOrderCancelled, event.EventType)
	}

	if event.OrderID != 42 || event.UserID != 7 {
		t.Errorf("order identifiers not set: %+v", event)
	}

	if event.Status != "cancelled" {
		t.Errorf("expected status cancelled, got %s", event.Status)
	}

	if event.Metadata["reason"] != "user request" {
		t.Error("metadata not set correctly")
	}

	// Нулевое at заменяется текущим временем.
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stock := NewStockEvent(EventTypeStockLow, "X-1", 2, at)
	if !stock.Timestamp.Equal(at) {
		t.Errorf("explicit event time must be kept: %s", stock.Timestamp)
	}
}

type capturingPublisher struct {
	orderEvents []*OrderEvent
	stockEvents []*StockEvent
}

func (c *capturingPublisher) PublishOrderEvent(event *OrderEvent) error {
	c.orderEvents = append(c.orderEvents, event)
	return nil
}

func (c *capturingPublisher) PublishStockEvent(event *StockEvent) error {
	c.stockEvents = append(c.stockEvents, event)
	return nil
}

func TestBridge_MapsOrderEvent(t *testing.T) {
	captured := &capturingPublisher{}
	bridge := &Bridge{publisher: captured}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := bridge.Handle(notify.Event{
		ID:   "evt-1",
		Kind: notify.EventOrderPlaced,
		At:   at,
		Payload: map[string]any{
			"order_id": int64(42),
			"user_id":  int64(7),
			"status":   "pending",
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(captured.orderEvents) != 1 {
		t.Fatalf("expected 1 order event, got %d", len(captured.orderEvents))
	}
	got := captured.orderEvents[0]
	if got.OrderID != 42 || got.UserID != 7 || got.Status != "pending" {
		t.Errorf("order event mapped incorrectly: %+v", got)
	}
	if got.EventType != EventTypeOrderPlaced {
		t.Errorf("expected event type %s, got %s", EventTypeOrderPlaced, got.EventType)
	}
	if !got.Timestamp.Equal(at) {
		t.Errorf("event time must come from the dispatcher event: %s", got.Timestamp)
	}
}

func TestBridge_MapsStockEvent(t *testing.T) {
	captured := &capturingPublisher{}
	bridge := &Bridge{publisher: captured}

	err := bridge.Handle(notify.Event{
		ID:   "evt-2",
		Kind: notify.EventStockLow,
		At:   time.Now(),
		Payload: map[string]any{
			"sku":       "X-1",
			"remaining": int32(2),
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(captured.stockEvents) != 1 {
		t.Fatalf("expected 1 stock event, got %d", len(captured.stockEvents))
	}
	got := captured.stockEvents[0]
	if got.SKU != "X-1" || got.Remaining != 2 {
		t.Errorf("stock event mapped incorrectly: %+v", got)
	}
}

func TestBridge_UnknownKind(t *testing.T) {
	bridge := &Bridge{publisher: &capturingPublisher{}}

	if err := bridge.Handle(notify.Event{Kind: "something.else"}); err == nil {
		t.Fatal("expected error for unmapped event kind")
	}
}
