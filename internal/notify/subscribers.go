package notify

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// LogSubscriber пишет каждое событие в структурированный лог.
type LogSubscriber struct {
	logger *log.Entry
}

// NewLogSubscriber создаёт лог-подписчика.
func NewLogSubscriber(logger *log.Entry) *LogSubscriber {
	if logger == nil {
		logger = log.WithField("component", "notify.log")
	}
	return &LogSubscriber{logger: logger}
}

func (s *LogSubscriber) Name() string { return "log" }

func (s *LogSubscriber) Handle(event Event) error {
	s.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_kind": string(event.Kind),
	}).Info("event received")
	return nil
}

// EmailSubscriber имитирует отправку писем покупателю: реальный SMTP-шлюз
// за пределами сервиса, здесь только формирование и лог письма.
type EmailSubscriber struct {
	logger *log.Entry
	from   string
}

// NewEmailSubscriber создаёт email-подписчика с адресом отправителя.
func NewEmailSubscriber(logger *log.Entry, from string) *EmailSubscriber {
	if logger == nil {
		logger = log.WithField("component", "notify.email")
	}
	return &EmailSubscriber{logger: logger, from: from}
}

func (s *EmailSubscriber) Name() string { return "email" }

func (s *EmailSubscriber) Handle(event Event) error {
	to, ok := event.Payload["user_email"].(string)
	if !ok || to == "" {
		return fmt.Errorf("event %s has no user_email payload", event.ID)
	}

	var subject string
	switch event.Kind {
	case EventOrderPlaced:
		subject = "Tu pedido ha sido recibido"
	case EventOrderUpdated:
		subject = "El estado de tu pedido ha cambiado"
	case EventOrderCancelled:
		subject = "Tu pedido ha sido cancelado"
	default:
		return nil
	}

	s.logger.WithFields(log.Fields{
		"from":     s.from,
		"to":       to,
		"subject":  subject,
		"event_id": event.ID,
	}).Info("email queued")
	return nil
}

// LowStockWatcher следит за событиями остатков и поднимает уровень лога
// до предупреждения, чтобы закупки заметили позицию.
type LowStockWatcher struct {
	logger *log.Entry
}

// NewLowStockWatcher создаёт наблюдателя низких остатков.
func NewLowStockWatcher(logger *log.Entry) *LowStockWatcher {
	if logger == nil {
		logger = log.WithField("component", "notify.stock")
	}
	return &LowStockWatcher{logger: logger}
}

func (s *LowStockWatcher) Name() string { return "low-stock-watcher" }

func (s *LowStockWatcher) Handle(event Event) error {
	fields := log.Fields{"event_id": event.ID}
	if sku, ok := event.Payload["sku"].(string); ok {
		fields["sku"] = sku
	}
	if remaining, ok := event.Payload["remaining"]; ok {
		fields["remaining"] = remaining
	}

	switch event.Kind {
	case EventStockOut:
		s.logger.WithFields(fields).Warn("item is out of stock")
	case EventStockLow:
		s.logger.WithFields(fields).Warn("item is running low")
	}
	return nil
}
