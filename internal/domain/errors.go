package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка пустого списка позиций в запросе на оформление.
	ErrEmptyOrder = errors.New("order must contain at least one line")
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = errors.New("user_id is required")
	// Ошибка отсутствия позиций у сохранённого заказа.
	ErrLinesRequired = errors.New("order must contain at least one line item")
	// Ошибка отрицательного итога заказа.
	ErrTotalNegative = errors.New("total_minor must be non-negative")
	// Ошибка пустого SKU в строке запроса или заказа.
	ErrLineSKURequired = errors.New("line sku is required")
	// Ошибка при некорректном количестве в строке (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка неположительной цены в строке заказа.
	ErrLinePriceInvalid = errors.New("line unit price must be greater than zero")
	// Ошибка несоответствия subtotal строки произведению qty * price.
	ErrLineSubtotalMismatch = errors.New("line subtotal does not match qty * unit price")
	// Ошибка несоответствия итога заказа сумме строк.
	ErrTotalMismatch = errors.New("order total does not match lines sum")

	// ErrUserInvalid — пользователь не найден или деактивирован.
	ErrUserInvalid = errors.New("user is missing or inactive")
	// ErrSKUNotFound — складская строка с таким SKU отсутствует.
	ErrSKUNotFound = errors.New("sku not found in inventory")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrLedgerBusy — блокировку складской строки не удалось получить за
	// отведённое время; вся попытка откатывается и может быть повторена целиком.
	ErrLedgerBusy = errors.New("inventory row is locked by another transaction")
	// ErrStatusTransition — запрошенный переход статуса заказа недопустим.
	ErrStatusTransition = errors.New("invalid order status transition")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — запись с таким ключом уже создана.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись с таким ключом отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// UnknownSKUError — бизнес-ошибка checkout: запрошенного SKU нет на складе.
type UnknownSKUError struct {
	SKU string
}

func (e *UnknownSKUError) Error() string {
	return fmt.Sprintf("unknown sku %q", e.SKU)
}

// Is позволяет проверять ошибку через errors.Is(err, ErrSKUNotFound).
func (e *UnknownSKUError) Is(target error) bool {
	return target == ErrSKUNotFound
}

// InsufficientStockError — бизнес-ошибка checkout: доступного количества
// не хватает на запрошенное. Несёт детали для точного сообщения покупателю.
type InsufficientStockError struct {
	SKU       string
	Available int32
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %q: available=%d requested=%d",
		e.SKU, e.Available, e.Requested)
}

// StorageError — инфраструктурный сбой хранилища. Любая ошибка БД,
// не являющаяся бизнес-ошибкой, поднимается наружу в этой обёртке
// и никогда не проглатывается.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsBusinessError сообщает, относится ли ошибка checkout к бизнес-правилам
// (в отличие от инфраструктурных сбоев, которые можно повторять).
func IsBusinessError(err error) bool {
	var unknownSKU *UnknownSKUError
	var insufficient *InsufficientStockError
	return errors.Is(err, ErrUserInvalid) ||
		errors.Is(err, ErrEmptyOrder) ||
		errors.Is(err, ErrLineQtyInvalid) ||
		errors.Is(err, ErrLineSKURequired) ||
		errors.As(err, &unknownSKU) ||
		errors.As(err, &insufficient)
}
