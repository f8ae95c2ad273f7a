package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

// GetItem возвращает складскую строку или ErrSKUNotFound.
func (s *Store) GetItem(sku string) (domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[sku]
	if !ok {
		return domain.InventoryItem{}, domain.ErrSKUNotFound
	}
	return item, nil
}

// ListItems возвращает все складские строки в порядке SKU.
func (s *Store) ListItems() ([]domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SKU < result[j].SKU
	})
	return result, nil
}

// Restock увеличивает доступное количество под той же строчной блокировкой,
// что и checkout, в самостоятельной транзакции.
func (s *Store) Restock(sku string, qty int32) (domain.InventoryItem, error) {
	if qty <= 0 {
		return domain.InventoryItem{}, domain.ErrLineQtyInvalid
	}

	key := "sku:" + sku
	if err := s.acquire(context.Background(), key); err != nil {
		return domain.InventoryItem{}, err
	}
	defer func() {
		sem := s.sem(key)
		select {
		case <-sem:
		default:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[sku]
	if !ok {
		return domain.InventoryItem{}, domain.ErrSKUNotFound
	}
	item.Available += qty
	item.UpdatedAt = time.Now().UTC()
	s.items[sku] = item
	return item, nil
}

// inventoryView адаптирует Store к domain.InventoryRepository: имена методов
// репозитория короче, чем у общего хранилища.
type inventoryView struct {
	store *Store
}

// NewInventoryRepository возвращает in-memory реализацию InventoryRepository
// поверх общего хранилища.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryView{store: store}
}

func (v *inventoryView) Get(sku string) (domain.InventoryItem, error) {
	return v.store.GetItem(sku)
}

func (v *inventoryView) List() ([]domain.InventoryItem, error) {
	return v.store.ListItems()
}

func (v *inventoryView) Restock(sku string, qty int32) (domain.InventoryItem, error) {
	return v.store.Restock(sku, qty)
}

var _ domain.InventoryRepository = (*inventoryView)(nil)
