package domain

import (
	"context"
	"time"
)

// CheckoutTx — операции складского реестра и хранилища заказов, доступные
// внутри одной транзакции. Все методы действуют в рамках транзакции,
// открытой CheckoutStore.WithinCheckout: либо фиксируются все записи,
// либо ни одной.
type CheckoutTx interface {
	// UserActive проверяет существование и активность пользователя.
	UserActive(ctx context.Context, userID int64) (bool, error)
	// InsertOrderHeader создаёт шапку заказа в статусе pending с нулевым
	// итогом и возвращает новый идентификатор заказа.
	InsertOrderHeader(ctx context.Context, userID int64, address, phone, notes string) (int64, error)
	// LockStock берёт эксклюзивную блокировку складской строки и возвращает
	// её снимок. Блокировка держится до конца транзакции. Возвращает
	// ErrSKUNotFound, если строки нет, и ErrLedgerBusy по таймауту ожидания.
	LockStock(ctx context.Context, sku string) (StockLine, error)
	// InsertOrderLine сохраняет позицию заказа со снимком названия/цены.
	InsertOrderLine(ctx context.Context, line OrderLine) error
	// DecrementStock списывает количество; допустим только после LockStock
	// того же SKU в этой же транзакции.
	DecrementStock(ctx context.Context, sku string, qty int32) error
	// IncrementStock возвращает количество на склад (restock/отмена);
	// та же дисциплина — сначала LockStock.
	IncrementStock(ctx context.Context, sku string, qty int32) error
	// FinalizeOrder записывает итог и переводит шапку в конечный статус
	// создания (processing).
	FinalizeOrder(ctx context.Context, orderID int64, totalMinor int64, status OrderStatus) error
	// GetOrderForUpdate читает заказ с позициями, блокируя шапку до конца
	// транзакции (для отмены с возвратом стока).
	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	// UpdateOrderStatus меняет статус шапки без пересчёта итога.
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error
}

// CheckoutStore открывает транзакционную область для checkout и отмены.
// Если fn возвращает ошибку, все выполненные в транзакции записи
// откатываются и хранилище остаётся в исходном состоянии.
type CheckoutStore interface {
	WithinCheckout(ctx context.Context, fn func(tx CheckoutTx) error) error
}

// OrderRepository описывает требования к читающей стороне хранилища заказов.
type OrderRepository interface {
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(id int64) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми,
	// с опциональным ограничением на количество.
	ListByUser(userID int64, limit int) ([]Order, error)
	// ListByStatus возвращает все заказы в указанном статусе.
	ListByStatus(status OrderStatus) ([]Order, error)
	// UpdateStatus применяет переход from → to атомарно (compare-and-set);
	// возвращает ErrStatusTransition, если текущий статус уже не from.
	UpdateStatus(id int64, from, to OrderStatus) error
}

// InventoryRepository — административный доступ к складскому реестру.
// Мутации внутри checkout идут через CheckoutTx, не через этот интерфейс.
type InventoryRepository interface {
	// Get возвращает складскую строку или ErrSKUNotFound.
	Get(sku string) (InventoryItem, error)
	// List возвращает все складские строки в порядке SKU.
	List() ([]InventoryItem, error)
	// Restock увеличивает доступное количество в отдельной транзакции
	// с той же дисциплиной lock-then-mutate и возвращает обновлённую строку.
	Restock(sku string, qty int32) (InventoryItem, error)
}

// UserRepository хранит покупателей.
type UserRepository interface {
	// Get возвращает пользователя или ErrUserInvalid, если его нет.
	Get(id int64) (User, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
