package memory

import (
	"sort"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

// Get возвращает заказ с позициями или ErrOrderNotFound.
func (s *Store) Get(id int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByUser возвращает заказы пользователя, новые первыми.
func (s *Store) ListByUser(userID int64, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.UserID != userID {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	sortOrdersDesc(result)

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListByStatus возвращает все заказы в указанном статусе, новые первыми.
func (s *Store) ListByStatus(status domain.OrderStatus) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	sortOrdersDesc(result)
	return result, nil
}

// UpdateStatus применяет переход from → to атомарно.
func (s *Store) UpdateStatus(id int64, from, to domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return domain.ErrStatusTransition
	}
	order.Status = to
	s.orders[id] = order
	return nil
}

func sortOrdersDesc(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

var _ domain.OrderRepository = (*Store)(nil)
