package orders

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
	"github.com/dcastellanos-dev/tienda-backend/internal/notify"
)

// Service управляет жизненным циклом уже оформленных заказов: чтение,
// переходы статусов и отмена с возвратом стока. Оформление новых заказов —
// зона ответственности checkout.Engine.
type Service struct {
	orders     domain.OrderRepository
	users      domain.UserRepository
	store      domain.CheckoutStore
	dispatcher *notify.Dispatcher
	logger     *log.Entry
}

// NewService создаёт сервис заказов. Диспетчер событий опционален.
func NewService(orders domain.OrderRepository, users domain.UserRepository, store domain.CheckoutStore, dispatcher *notify.Dispatcher, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders-service")
	}
	return &Service{
		orders:     orders,
		users:      users,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Get возвращает заказ с позициями.
func (s *Service) Get(id int64) (domain.Order, error) {
	return s.orders.Get(id)
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (s *Service) ListByUser(userID int64, limit int) ([]domain.Order, error) {
	if userID <= 0 {
		return nil, domain.ErrUserIDRequired
	}
	return s.orders.ListByUser(userID, limit)
}

// ListByStatus возвращает все заказы в указанном статусе.
func (s *Service) ListByStatus(status domain.OrderStatus) ([]domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("list orders: unknown status %q", status)
	}
	return s.orders.ListByStatus(status)
}

// UpdateStatus применяет переход статуса заказа. Переход проверяется по
// матрице жизненного цикла, запись — атомарный compare-and-set, так что
// конкурирующее изменение статуса получает ErrStatusTransition.
func (s *Service) UpdateStatus(id int64, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, fmt.Errorf("update order %d: unknown status %q", id, to)
	}
	if to == domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("update order %d: cancellation restores stock, use Cancel: %w", id, domain.ErrStatusTransition)
	}

	order, err := s.orders.Get(id)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanTransition(to) {
		return domain.Order{}, fmt.Errorf("order %d: %s -> %s: %w", id, order.Status, to, domain.ErrStatusTransition)
	}

	if err := s.orders.UpdateStatus(id, order.Status, to); err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": id,
		"from":     string(order.Status),
		"to":       string(to),
	}).Info("order status updated")

	s.publishOrderEvent(notify.EventOrderUpdated, order, to, nil)

	order.Status = to
	return order, nil
}

// Cancel отменяет заказ и возвращает списанный сток в той же транзакции,
// где меняется статус: либо заказ отменён и все остатки восстановлены,
// либо ничего не изменилось. Блокировки складских строк берутся в
// возрастающем порядке SKU, как и при оформлении.
func (s *Service) Cancel(ctx context.Context, orderID int64, reason string) (domain.Order, error) {
	var cancelled domain.Order

	err := s.store.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.Cancellable() {
			return fmt.Errorf("order %d: %s -> cancelled: %w", orderID, order.Status, domain.ErrStatusTransition)
		}

		for _, line := range mergedLineQuantities(order.Lines) {
			if _, err := tx.LockStock(ctx, line.SKU); err != nil {
				return err
			}
			if err := tx.IncrementStock(ctx, line.SKU, line.Qty); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrderStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
			return err
		}

		cancelled = order
		cancelled.Status = domain.OrderStatusCancelled
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"reason":   reason,
		"lines":    len(cancelled.Lines),
	}).Info("order cancelled, stock restored")

	s.publishOrderEvent(notify.EventOrderCancelled, cancelled, domain.OrderStatusCancelled, map[string]any{
		"reason": reason,
	})

	return cancelled, nil
}

// AnnouncePlaced публикует событие об успешно оформленном заказе.
// Вызывается после фиксации checkout-транзакции.
func (s *Service) AnnouncePlaced(order domain.Order) {
	s.publishOrderEvent(notify.EventOrderPlaced, order, order.Status, nil)
}

// mergedLineQuantities складывает количества по SKU и сортирует результат:
// заказ мог быть сохранён до схлопывания дублей, а порядок взятия блокировок
// обязан быть детерминированным.
func mergedLineQuantities(lines []domain.OrderLine) []domain.OrderRequestLine {
	bySKU := make(map[string]int32, len(lines))
	for _, line := range lines {
		bySKU[line.SKU] += line.Qty
	}

	merged := make([]domain.OrderRequestLine, 0, len(bySKU))
	for sku, qty := range bySKU {
		merged = append(merged, domain.OrderRequestLine{SKU: sku, Qty: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].SKU < merged[j].SKU })
	return merged
}

// publishOrderEvent отправляет событие заказа в диспетчер, дополняя его
// email покупателя, если пользователь читается. Сбой чтения пользователя
// событие не блокирует.
func (s *Service) publishOrderEvent(kind notify.EventKind, order domain.Order, status domain.OrderStatus, extra map[string]any) {
	if s.dispatcher == nil {
		return
	}

	payload := map[string]any{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"status":      string(status),
		"total_minor": order.TotalMinor,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if s.users != nil {
		if user, err := s.users.Get(order.UserID); err == nil {
			payload["user_email"] = user.Email
		}
	}

	s.dispatcher.Publish(kind, payload)
}
