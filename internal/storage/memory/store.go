package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

const defaultLockWait = 2 * time.Second

// Store — in-memory реализация складского реестра и хранилища заказов для
// локальной разработки и тестов. Эмулирует строчные блокировки склада
// (семафор на SKU с ограниченным ожиданием) и атомарность checkout:
// все записи транзакции буферизуются и применяются только при коммите.
type Store struct {
	mu     sync.Mutex
	users  map[int64]domain.User
	items  map[string]domain.InventoryItem
	orders map[int64]domain.Order
	// семафоры строчных блокировок: ключ "sku:<sku>" либо "order:<id>".
	locks map[string]chan struct{}

	nextOrderID int64
	lockWait    time.Duration
}

// NewStore возвращает пустое хранилище.
func NewStore() *Store {
	return &Store{
		users:    make(map[int64]domain.User),
		items:    make(map[string]domain.InventoryItem),
		orders:   make(map[int64]domain.Order),
		locks:    make(map[string]chan struct{}),
		lockWait: defaultLockWait,
	}
}

// SetLockWait меняет таймаут ожидания строчной блокировки (для тестов Busy).
func (s *Store) SetLockWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockWait = d
}

// SeedUser добавляет пользователя.
func (s *Store) SeedUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// SeedItem добавляет или перезаписывает складскую строку.
func (s *Store) SeedItem(item domain.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	s.items[item.SKU] = item
}

// WithinCheckout выполняет fn в эмулированной транзакции: при ошибке все
// буферизованные записи отбрасываются и блокировки снимаются.
func (s *Store) WithinCheckout(ctx context.Context, fn func(tx domain.CheckoutTx) error) error {
	tx := &checkoutTx{
		store:   s,
		held:    make(map[string]bool),
		deltas:  make(map[string]int32),
		created: make(map[int64]*domain.Order),
		status:  make(map[int64]domain.OrderStatus),
	}
	defer tx.releaseLocks()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

// sem возвращает семафор для ключа блокировки, создавая его при первом обращении.
func (s *Store) sem(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[key] = sem
	}
	return sem
}

// acquire берёт блокировку с ограниченным ожиданием.
func (s *Store) acquire(ctx context.Context, key string) error {
	s.mu.Lock()
	wait := s.lockWait
	s.mu.Unlock()

	sem := s.sem(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return domain.ErrLedgerBusy
	case <-ctx.Done():
		return domain.ErrLedgerBusy
	}
}

type checkoutTx struct {
	store *Store
	// held — ключи блокировок, взятые этой транзакцией.
	held map[string]bool
	// deltas — отложенные изменения количества по SKU.
	deltas map[string]int32
	// created — черновики заказов, создаваемых этой транзакцией.
	created map[int64]*domain.Order
	// status — отложенные смены статуса существующих заказов.
	status map[int64]domain.OrderStatus
}

func (t *checkoutTx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.store.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = true
	return nil
}

func (t *checkoutTx) UserActive(ctx context.Context, userID int64) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	user, ok := t.store.users[userID]
	return ok && user.Active, nil
}

func (t *checkoutTx) InsertOrderHeader(ctx context.Context, userID int64, address, phone, notes string) (int64, error) {
	t.store.mu.Lock()
	t.store.nextOrderID++
	id := t.store.nextOrderID
	t.store.mu.Unlock()

	now := time.Now().UTC()
	t.created[id] = &domain.Order{
		ID:              id,
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		ShippingAddress: address,
		ContactPhone:    phone,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return id, nil
}

func (t *checkoutTx) LockStock(ctx context.Context, sku string) (domain.StockLine, error) {
	if err := t.lock(ctx, "sku:"+sku); err != nil {
		return domain.StockLine{}, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	item, ok := t.store.items[sku]
	if !ok {
		return domain.StockLine{}, domain.ErrSKUNotFound
	}
	return domain.StockLine{
		SKU:            item.SKU,
		ProductName:    item.ProductName,
		Size:           item.Size,
		Available:      item.Available + t.deltas[sku],
		UnitPriceMinor: item.UnitPriceMinor,
	}, nil
}

func (t *checkoutTx) InsertOrderLine(ctx context.Context, line domain.OrderLine) error {
	draft, ok := t.created[line.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	draft.Lines = append(draft.Lines, line)
	return nil
}

func (t *checkoutTx) DecrementStock(ctx context.Context, sku string, qty int32) error {
	return t.adjustStock(sku, -qty)
}

func (t *checkoutTx) IncrementStock(ctx context.Context, sku string, qty int32) error {
	return t.adjustStock(sku, qty)
}

func (t *checkoutTx) adjustStock(sku string, delta int32) error {
	if !t.held["sku:"+sku] {
		return fmt.Errorf("stock row %q is not locked by this transaction", sku)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.items[sku]; !ok {
		return domain.ErrSKUNotFound
	}
	t.deltas[sku] += delta
	return nil
}

func (t *checkoutTx) FinalizeOrder(ctx context.Context, orderID int64, totalMinor int64, status domain.OrderStatus) error {
	draft, ok := t.created[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	draft.TotalMinor = totalMinor
	draft.Status = status
	draft.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *checkoutTx) GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	if err := t.lock(ctx, fmt.Sprintf("order:%d", orderID)); err != nil {
		return domain.Order{}, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	order, ok := t.store.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (t *checkoutTx) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.orders[orderID]; !ok {
		return domain.ErrOrderNotFound
	}
	t.status[orderID] = status
	return nil
}

// commit применяет буферизованные изменения под общим мьютексом хранилища.
func (t *checkoutTx) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	// Изменения стока проверяются перед применением: отрицательный остаток
	// означает нарушение дисциплины блокировок вызывающим кодом.
	for sku, delta := range t.deltas {
		item := t.store.items[sku]
		if item.Available+delta < 0 {
			return fmt.Errorf("commit would drive sku %q negative: available=%d delta=%d",
				sku, item.Available, delta)
		}
	}

	now := time.Now().UTC()
	for sku, delta := range t.deltas {
		item := t.store.items[sku]
		item.Available += delta
		item.UpdatedAt = now
		t.store.items[sku] = item
	}
	for id, draft := range t.created {
		t.store.orders[id] = cloneOrder(*draft)
	}
	for id, status := range t.status {
		order := t.store.orders[id]
		order.Status = status
		order.UpdatedAt = now
		t.store.orders[id] = order
	}
	return nil
}

func (t *checkoutTx) releaseLocks() {
	for key, held := range t.held {
		if !held {
			continue
		}
		sem := t.store.sem(key)
		select {
		case <-sem:
		default:
		}
	}
	t.held = make(map[string]bool)
}

func cloneOrder(order domain.Order) domain.Order {
	lines := make([]domain.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	order.Lines = lines
	return order
}

var _ domain.CheckoutStore = (*Store)(nil)
