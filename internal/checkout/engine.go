package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
	"github.com/dcastellanos-dev/tienda-backend/internal/metrics"
)

// PlaceOrderRequest — входные данные одной попытки оформления заказа.
type PlaceOrderRequest struct {
	UserID          int64
	ShippingAddress string
	ContactPhone    string
	Notes           string
	Lines           []domain.OrderRequestLine
}

// PlacedLine — результат по одной позиции успешно оформленного заказа.
type PlacedLine struct {
	SKU            string
	ProductName    string
	Size           string
	Qty            int32
	UnitPriceMinor int64
	SubtotalMinor  int64
	// Remaining — остаток на складе после списания; используется вызывающей
	// стороной для событий о низком стоке.
	Remaining int32
}

// PlacedOrder — результат успешного PlaceOrder.
type PlacedOrder struct {
	OrderID    int64
	UserID     int64
	TotalMinor int64
	Status     domain.OrderStatus
	Lines      []PlacedLine
}

// Engine выполняет оформление заказа как одну атомарную транзакцию:
// блокировка складских строк в фиксированном порядке, проверка доступности,
// подсчёт итога, запись шапки и позиций, списание стока. Любая ошибка на
// любом шаге откатывает все записи попытки целиком — частичных заказов
// не бывает.
type Engine struct {
	store   domain.CheckoutStore
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
}

// NewEngine создаёт рабочий экземпляр движка.
func NewEngine(store domain.CheckoutStore, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Engine{
		store:   store,
		logger:  logger,
		metrics: metrics.NewCheckoutMetrics(),
	}
}

// NewEngineWithoutMetrics создаёт движок без метрик (для тестов).
func NewEngineWithoutMetrics(store domain.CheckoutStore, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	return &Engine{store: store, logger: logger}
}

// PlaceOrder оформляет заказ. Возвращает бизнес-ошибку (ErrUserInvalid,
// UnknownSKUError, InsufficientStockError), ErrLedgerBusy при таймауте
// блокировки или StorageError при инфраструктурном сбое. Успех означает,
// что шапка, позиции и списания зафиксированы; ошибка — что хранилище
// осталось в состоянии до вызова.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlacedOrder, error) {
	start := time.Now()
	if e.metrics != nil {
		e.metrics.RecordAttempt()
		defer func() {
			e.metrics.RecordDuration(time.Since(start))
		}()
	}

	// Валидация до открытия транзакции: дёшево и без единой блокировки.
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordRejected("validation")
		}
		return PlacedOrder{}, err
	}

	var placed PlacedOrder
	txErr := e.store.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		// Активность пользователя перепроверяется внутри транзакции.
		active, err := tx.UserActive(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("check user %d: %w", req.UserID, err)
		}
		if !active {
			return domain.ErrUserInvalid
		}

		orderID, err := tx.InsertOrderHeader(ctx, req.UserID, req.ShippingAddress, req.ContactPhone, req.Notes)
		if err != nil {
			return fmt.Errorf("insert order header: %w", err)
		}

		var total int64
		placedLines := make([]PlacedLine, 0, len(lines))

		// SKU обрабатываются строго по возрастанию: конкурирующие checkout с
		// пересекающимися наборами позиций берут блокировки в одном порядке
		// и не могут взаимно заблокировать друг друга.
		for _, line := range lines {
			stock, err := tx.LockStock(ctx, line.SKU)
			if err != nil {
				if errors.Is(err, domain.ErrSKUNotFound) {
					return &domain.UnknownSKUError{SKU: line.SKU}
				}
				if errors.Is(err, domain.ErrLedgerBusy) {
					return err
				}
				return fmt.Errorf("lock stock %q: %w", line.SKU, err)
			}
			if stock.Available < line.Qty {
				return &domain.InsufficientStockError{
					SKU:       line.SKU,
					Available: stock.Available,
					Requested: line.Qty,
				}
			}

			subtotal := int64(line.Qty) * stock.UnitPriceMinor
			total += subtotal

			if err := tx.InsertOrderLine(ctx, domain.OrderLine{
				OrderID:        orderID,
				SKU:            line.SKU,
				ProductName:    stock.ProductName,
				Size:           stock.Size,
				Qty:            line.Qty,
				UnitPriceMinor: stock.UnitPriceMinor,
				SubtotalMinor:  subtotal,
			}); err != nil {
				return fmt.Errorf("insert order line %q: %w", line.SKU, err)
			}
			if err := tx.DecrementStock(ctx, line.SKU, line.Qty); err != nil {
				return fmt.Errorf("decrement stock %q: %w", line.SKU, err)
			}

			placedLines = append(placedLines, PlacedLine{
				SKU:            line.SKU,
				ProductName:    stock.ProductName,
				Size:           stock.Size,
				Qty:            line.Qty,
				UnitPriceMinor: stock.UnitPriceMinor,
				SubtotalMinor:  subtotal,
				Remaining:      stock.Available - line.Qty,
			})
		}

		if err := tx.FinalizeOrder(ctx, orderID, total, domain.OrderStatusProcessing); err != nil {
			return fmt.Errorf("finalize order %d: %w", orderID, err)
		}

		placed = PlacedOrder{
			OrderID:    orderID,
			UserID:     req.UserID,
			TotalMinor: total,
			Status:     domain.OrderStatusProcessing,
			Lines:      placedLines,
		}
		return nil
	})
	if txErr != nil {
		return PlacedOrder{}, e.classify(req.UserID, txErr)
	}

	if e.metrics != nil {
		e.metrics.RecordPlaced(placed.TotalMinor)
	}
	e.logger.WithFields(log.Fields{
		"order_id":    placed.OrderID,
		"user_id":     placed.UserID,
		"total_minor": placed.TotalMinor,
		"lines":       len(placed.Lines),
	}).Info("order placed")

	return placed, nil
}

// classify разделяет бизнес-ошибки, занятость склада и инфраструктурные сбои.
func (e *Engine) classify(userID int64, err error) error {
	switch {
	case domain.IsBusinessError(err):
		if e.metrics != nil {
			e.metrics.RecordRejected("business")
		}
		return err
	case errors.Is(err, domain.ErrLedgerBusy):
		if e.metrics != nil {
			e.metrics.RecordRejected("busy")
		}
		e.logger.WithField("user_id", userID).Warn("checkout aborted: inventory lock timeout")
		return domain.ErrLedgerBusy
	default:
		if e.metrics != nil {
			e.metrics.RecordRejected("storage")
		}
		e.logger.WithError(err).WithField("user_id", userID).Error("checkout aborted: storage failure")
		return &domain.StorageError{Op: "place order", Err: err}
	}
}

// normalizeLines валидирует строки запроса, схлопывает дубли SKU и сортирует
// результат по возрастанию SKU.
func normalizeLines(lines []domain.OrderRequestLine) ([]domain.OrderRequestLine, error) {
	if len(lines) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	merged := make(map[string]int32, len(lines))
	for _, line := range lines {
		if line.SKU == "" {
			return nil, domain.ErrLineSKURequired
		}
		if line.Qty <= 0 {
			return nil, domain.ErrLineQtyInvalid
		}
		// Сумма двух положительных int32 при переполнении уходит в минус и
		// проскочила бы проверку остатка.
		sum := merged[line.SKU] + line.Qty
		if sum < line.Qty {
			return nil, domain.ErrLineQtyInvalid
		}
		merged[line.SKU] = sum
	}

	result := make([]domain.OrderRequestLine, 0, len(merged))
	for sku, qty := range merged {
		result = append(result, domain.OrderRequestLine{SKU: sku, Qty: qty})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SKU < result[j].SKU
	})

	return result, nil
}
