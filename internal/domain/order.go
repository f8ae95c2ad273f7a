package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в магазине.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, позиции и итог ещё не зафиксированы.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — итог посчитан, сток списан, заказ в обработке.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCompleted — заказ доставлен покупателю.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// допустимые переходы статусов; отмена возможна только до отгрузки.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusCompleted},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

// CanTransition проверяет допустимость перехода s → to.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Cancellable сообщает, можно ли отменить заказ из текущего статуса.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransition(OrderStatusCancelled)
}

// OrderLine представляет одну позицию заказа.
// Название, размер и цена — снимок на момент покупки: последующие изменения
// каталога на сохранённый заказ не влияют.
type OrderLine struct {
	OrderID int64
	// SKU — внешний идентификатор товарной позиции на складе.
	SKU         string
	ProductName string
	Size        string
	Qty         int32
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах (центах).
	UnitPriceMinor int64
	// SubtotalMinor = Qty * UnitPriceMinor; хранится явно для аудита.
	SubtotalMinor int64
	CreatedAt     time.Time
}

// Order агрегирует шапку заказа и его позиции.
type Order struct {
	ID              int64
	UserID          int64
	Status          OrderStatus
	TotalMinor      int64
	ShippingAddress string
	ContactPhone    string
	Notes           string
	Lines           []OrderLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID <= 0 {
		errs = append(errs, ErrUserIDRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}

	// Сверяем итог заказа с суммой позиций: qty * price на каждой строке.
	var calc int64
	for _, line := range o.Lines {
		if line.SKU == "" {
			errs = append(errs, ErrLineSKURequired)
		}
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPriceMinor <= 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		if line.SubtotalMinor != int64(line.Qty)*line.UnitPriceMinor {
			errs = append(errs, ErrLineSubtotalMismatch)
		}
		calc += line.SubtotalMinor
	}
	if calc != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// OrderRequestLine — входная строка запроса на оформление заказа.
// Живёт только на время попытки транзакции и не сохраняется.
type OrderRequestLine struct {
	SKU string
	Qty int32
}
