package notify

import (
	"errors"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
)

type recordingSubscriber struct {
	name string
	fail error

	mu     sync.Mutex
	events []Event
}

func (s *recordingSubscriber) Name() string { return s.name }

func (s *recordingSubscriber) Handle(event Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return s.fail
}

func (s *recordingSubscriber) seen() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type panickySubscriber struct{}

func (panickySubscriber) Name() string       { return "panicky" }
func (panickySubscriber) Handle(Event) error { panic("boom") }

func newTestDispatcher() *Dispatcher {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return NewDispatcher(logger.WithField("component", "test"), nil)
}

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := newTestDispatcher()
	first := &recordingSubscriber{name: "first"}
	second := &recordingSubscriber{name: "second"}
	d.Subscribe(EventOrderPlaced, first)
	d.Subscribe(EventOrderPlaced, second)

	d.Publish(EventOrderPlaced, map[string]any{"order_id": int64(7)})
	d.Wait()

	for _, sub := range []*recordingSubscriber{first, second} {
		events := sub.seen()
		if len(events) != 1 {
			t.Fatalf("subscriber %s saw %d events, expected 1", sub.name, len(events))
		}
		if events[0].Kind != EventOrderPlaced {
			t.Fatalf("unexpected event kind %q", events[0].Kind)
		}
		if events[0].ID == "" {
			t.Fatalf("event ID not assigned")
		}
	}
}

func TestDispatcherIsolatesFailingSubscriber(t *testing.T) {
	d := newTestDispatcher()
	failing := &recordingSubscriber{name: "failing", fail: errors.New("smtp down")}
	healthy := &recordingSubscriber{name: "healthy"}
	d.Subscribe(EventOrderCancelled, failing)
	d.Subscribe(EventOrderCancelled, panickySubscriber{})
	d.Subscribe(EventOrderCancelled, healthy)

	d.Publish(EventOrderCancelled, nil)
	d.Wait()

	if len(healthy.seen()) != 1 {
		t.Fatalf("healthy subscriber did not receive the event")
	}
}

func TestDispatcherDoesNotCrossKinds(t *testing.T) {
	d := newTestDispatcher()
	stock := &recordingSubscriber{name: "stock"}
	d.Subscribe(EventStockLow, stock)

	d.Publish(EventOrderPlaced, nil)
	d.Wait()

	if len(stock.seen()) != 0 {
		t.Fatalf("subscriber received an event of a foreign kind")
	}
}

func TestDispatcherUnsubscribe(t *testing.T) {
	d := newTestDispatcher()
	sub := &recordingSubscriber{name: "temp"}
	d.Subscribe(EventOrderUpdated, sub)
	d.Unsubscribe(EventOrderUpdated, "temp")

	d.Publish(EventOrderUpdated, nil)
	d.Wait()

	if len(sub.seen()) != 0 {
		t.Fatalf("unsubscribed subscriber still received events")
	}
}

func TestDispatcherHistory(t *testing.T) {
	d := newTestDispatcher()

	d.Publish(EventOrderPlaced, map[string]any{"order_id": int64(1)})
	d.Publish(EventStockLow, map[string]any{"sku": "X-1"})
	d.Publish(EventOrderPlaced, map[string]any{"order_id": int64(2)})
	d.Wait()

	all := d.History("", 0)
	if len(all) != 3 {
		t.Fatalf("history holds %d events, expected 3", len(all))
	}
	// Новейшие первыми.
	if all[0].Payload["order_id"] != int64(2) {
		t.Fatalf("history is not ordered newest first")
	}

	placed := d.History(EventOrderPlaced, 1)
	if len(placed) != 1 || placed[0].Kind != EventOrderPlaced {
		t.Fatalf("filtered history returned %v", placed)
	}
}

func TestDispatcherHistoryCapped(t *testing.T) {
	d := newTestDispatcher()
	d.historyMax = 4

	for i := 0; i < 10; i++ {
		d.Publish(EventOrderUpdated, map[string]any{"n": i})
	}
	d.Wait()

	if got := len(d.History("", 0)); got != 4 {
		t.Fatalf("history holds %d events, expected cap of 4", got)
	}
}

func TestDispatcherIgnoresDuplicateSubscriber(t *testing.T) {
	d := newTestDispatcher()
	sub := &recordingSubscriber{name: "dup"}
	d.Subscribe(EventOrderPlaced, sub)
	d.Subscribe(EventOrderPlaced, sub)

	d.Publish(EventOrderPlaced, nil)
	d.Wait()

	if len(sub.seen()) != 1 {
		t.Fatalf("duplicate subscription caused %d deliveries", len(sub.seen()))
	}
}
