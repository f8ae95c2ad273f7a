package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/metrics"
)

// EventKind определяет тип события магазина.
type EventKind string

const (
	// EventOrderPlaced — заказ успешно оформлен и зафиксирован.
	EventOrderPlaced EventKind = "order.placed"
	// EventOrderUpdated — статус заказа изменён.
	EventOrderUpdated EventKind = "order.updated"
	// EventOrderCancelled — заказ отменён, сток возвращён.
	EventOrderCancelled EventKind = "order.cancelled"
	// EventStockLow — остаток позиции упал ниже порога.
	EventStockLow EventKind = "stock.low"
	// EventStockOut — позиция полностью распродана.
	EventStockOut EventKind = "stock.out"
)

// Event — одно событие для подписчиков.
type Event struct {
	ID      string         `json:"id"`
	Kind    EventKind      `json:"kind"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Subscriber — потребитель событий. Ошибка подписчика изолируется
// диспетчером и не влияет ни на другие подписки, ни на вызывающий код.
type Subscriber interface {
	Name() string
	Handle(event Event) error
}

const defaultHistoryLimit = 256

// Dispatcher рассылает события упорядоченному реестру подписчиков по типам.
// Доставка асинхронная и best-effort: Publish возвращается сразу, сбой
// одного подписчика логируется и не мешает доставке остальным. Уже
// зафиксированную транзакцию сбой уведомления не откатывает никогда.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[EventKind][]Subscriber
	history     []Event
	historyMax  int

	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	wg      sync.WaitGroup
}

// NewDispatcher создаёт диспетчер событий.
func NewDispatcher(logger *log.Entry, m *metrics.CheckoutMetrics) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "notify")
	}
	return &Dispatcher{
		subscribers: make(map[EventKind][]Subscriber),
		historyMax:  defaultHistoryLimit,
		logger:      logger,
		metrics:     m,
	}
}

// Subscribe добавляет подписчика на тип события. Порядок рассылки
// соответствует порядку подписки.
func (d *Dispatcher) Subscribe(kind EventKind, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.subscribers[kind] {
		if existing.Name() == sub.Name() {
			return
		}
	}
	d.subscribers[kind] = append(d.subscribers[kind], sub)
}

// Unsubscribe убирает подписчика по имени.
func (d *Dispatcher) Unsubscribe(kind EventKind, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subscribers[kind]
	for i, sub := range subs {
		if sub.Name() == name {
			d.subscribers[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish фиксирует событие в истории и запускает асинхронную рассылку.
func (d *Dispatcher) Publish(kind EventKind, payload map[string]any) {
	event := Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		At:      time.Now().UTC(),
		Payload: payload,
	}

	d.mu.Lock()
	d.history = append(d.history, event)
	if len(d.history) > d.historyMax {
		d.history = d.history[len(d.history)-d.historyMax:]
	}
	subs := make([]Subscriber, len(d.subscribers[kind]))
	copy(subs, d.subscribers[kind])
	d.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, sub := range subs {
			d.deliver(sub, event)
		}
	}()
}

// deliver доставляет событие одному подписчику, изолируя ошибку и панику.
func (d *Dispatcher) deliver(sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(log.Fields{
				"subscriber": sub.Name(),
				"event_kind": string(event.Kind),
				"panic":      r,
			}).Error("subscriber panicked")
			if d.metrics != nil {
				d.metrics.RecordNotifyDropped()
			}
		}
	}()

	if err := sub.Handle(event); err != nil {
		d.logger.WithError(err).WithFields(log.Fields{
			"subscriber": sub.Name(),
			"event_kind": string(event.Kind),
			"event_id":   event.ID,
		}).Warn("subscriber failed to handle event")
		if d.metrics != nil {
			d.metrics.RecordNotifyDropped()
		}
		return
	}
	if d.metrics != nil {
		d.metrics.RecordNotifyDelivered()
	}
}

// History возвращает последние события, опционально отфильтрованные по типу.
func (d *Dispatcher) History(kind EventKind, limit int) []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]Event, 0, limit)
	for i := len(d.history) - 1; i >= 0; i-- {
		if kind != "" && d.history[i].Kind != kind {
			continue
		}
		result = append(result, d.history[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Wait дожидается завершения всех запущенных рассылок (для тестов и shutdown).
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
