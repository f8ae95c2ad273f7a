package inventory

import (
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
	"github.com/dcastellanos-dev/tienda-backend/internal/notify"
)

// DefaultLowStockThreshold — порог остатка, ниже которого поднимается
// событие stock.low.
const DefaultLowStockThreshold int32 = 5

// Service — административный слой складского реестра: чтение остатков,
// пополнение и события об уровне запасов.
type Service struct {
	items      domain.InventoryRepository
	dispatcher *notify.Dispatcher
	threshold  int32
	logger     *log.Entry
}

// NewService создаёт складской сервис. Порог threshold <= 0 заменяется
// значением по умолчанию.
func NewService(items domain.InventoryRepository, dispatcher *notify.Dispatcher, threshold int32, logger *log.Entry) *Service {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	if logger == nil {
		logger = log.WithField("component", "inventory-service")
	}
	return &Service{
		items:      items,
		dispatcher: dispatcher,
		threshold:  threshold,
		logger:     logger,
	}
}

// Get возвращает складскую строку.
func (s *Service) Get(sku string) (domain.InventoryItem, error) {
	return s.items.Get(sku)
}

// List возвращает все складские строки.
func (s *Service) List() ([]domain.InventoryItem, error) {
	return s.items.List()
}

// Restock увеличивает доступное количество позиции.
func (s *Service) Restock(sku string, qty int32) (domain.InventoryItem, error) {
	item, err := s.items.Restock(sku, qty)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.logger.WithFields(log.Fields{
		"sku":       sku,
		"qty":       qty,
		"available": item.Available,
	}).Info("stock replenished")
	return item, nil
}

// ObserveLevel сообщает сервису остаток позиции после списания и публикует
// stock.out при нуле или stock.low при остатке не выше порога. Вызывается
// после фиксации checkout-транзакции, на само оформление не влияет.
func (s *Service) ObserveLevel(sku string, remaining int32) {
	if s.dispatcher == nil || remaining > s.threshold {
		return
	}

	kind := notify.EventStockLow
	if remaining == 0 {
		kind = notify.EventStockOut
	}
	s.dispatcher.Publish(kind, map[string]any{
		"sku":       sku,
		"remaining": remaining,
	})
}
