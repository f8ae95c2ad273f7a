package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

const (
	// pgCodeLockNotAvailable — истёк lock_timeout при ожидании строчной блокировки.
	pgCodeLockNotAvailable = "55P03"
	// pgCodeCheckViolation — нарушение CHECK-ограничения (available >= 0).
	pgCodeCheckViolation = "23514"

	defaultLockTimeout = 3 * time.Second
)

// checkoutStore реализует domain.CheckoutStore поверх PostgreSQL.
// Вся последовательность checkout выполняется в одной транзакции с
// блокировкой складских строк через SELECT ... FOR UPDATE; ожидание
// блокировки ограничено lock_timeout, по истечении которого попытка
// завершается ErrLedgerBusy и полностью откатывается.
type checkoutStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewCheckoutStore создаёт PostgreSQL-реализацию CheckoutStore.
func NewCheckoutStore(store *Store) domain.CheckoutStore {
	return &checkoutStore{db: store.DB(), lockTimeout: defaultLockTimeout}
}

// NewCheckoutStoreWithLockTimeout создаёт CheckoutStore с нестандартным
// таймаутом ожидания строчных блокировок.
func NewCheckoutStoreWithLockTimeout(store *Store, lockTimeout time.Duration) domain.CheckoutStore {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &checkoutStore{db: store.DB(), lockTimeout: lockTimeout}
}

func (s *checkoutStore) WithinCheckout(ctx context.Context, fn func(tx domain.CheckoutTx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// SET LOCAL действует до конца транзакции; длительность нельзя передать
	// плейсхолдером, поэтому она форматируется в целых миллисекундах.
	if _, err = tx.ExecContext(ctx,
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err = fn(&checkoutTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout tx: %w", err)
	}
	return nil
}

type checkoutTx struct {
	tx *sql.Tx
}

func (t *checkoutTx) UserActive(ctx context.Context, userID int64) (bool, error) {
	var active bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT active FROM users WHERE id = $1
	`, userID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select user: %w", err)
	}
	return active, nil
}

func (t *checkoutTx) InsertOrderHeader(ctx context.Context, userID int64, address, phone, notes string) (int64, error) {
	var orderID int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, status, total_minor, shipping_address, contact_phone, notes)
		VALUES ($1, $2, 0, $3, $4, $5)
		RETURNING id
	`, userID, string(domain.OrderStatusPending), address, phone, notes).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert order header: %w", err)
	}
	return orderID, nil
}

func (t *checkoutTx) LockStock(ctx context.Context, sku string) (domain.StockLine, error) {
	var line domain.StockLine
	err := t.tx.QueryRowContext(ctx, `
		SELECT sku, product_name, size, available, unit_price_minor
		FROM inventory
		WHERE sku = $1
		FOR UPDATE
	`, sku).Scan(&line.SKU, &line.ProductName, &line.Size, &line.Available, &line.UnitPriceMinor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockLine{}, domain.ErrSKUNotFound
		}
		if isPgCode(err, pgCodeLockNotAvailable) {
			return domain.StockLine{}, domain.ErrLedgerBusy
		}
		return domain.StockLine{}, fmt.Errorf("lock inventory row: %w", err)
	}
	return line, nil
}

func (t *checkoutTx) InsertOrderLine(ctx context.Context, line domain.OrderLine) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, sku, product_name, size, qty, unit_price_minor, subtotal_minor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, line.OrderID, line.SKU, line.ProductName, line.Size, line.Qty, line.UnitPriceMinor, line.SubtotalMinor)
	if err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (t *checkoutTx) DecrementStock(ctx context.Context, sku string, qty int32) error {
	return t.adjustStock(ctx, sku, `
		UPDATE inventory
		SET available = available - $2, updated_at = NOW()
		WHERE sku = $1
	`, qty)
}

func (t *checkoutTx) IncrementStock(ctx context.Context, sku string, qty int32) error {
	return t.adjustStock(ctx, sku, `
		UPDATE inventory
		SET available = available + $2, updated_at = NOW()
		WHERE sku = $1
	`, qty)
}

func (t *checkoutTx) adjustStock(ctx context.Context, sku, query string, qty int32) error {
	res, err := t.tx.ExecContext(ctx, query, sku, qty)
	if err != nil {
		// CHECK available >= 0 — последний рубеж: при соблюдении дисциплины
		// блокировок движок никогда сюда не попадает.
		if isPgCode(err, pgCodeCheckViolation) {
			return fmt.Errorf("stock adjustment would violate non-negativity for %q: %w", sku, err)
		}
		return fmt.Errorf("adjust stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrSKUNotFound
	}
	return nil
}

func (t *checkoutTx) FinalizeOrder(ctx context.Context, orderID int64, totalMinor int64, status domain.OrderStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET total_minor = $2, status = $3, updated_at = NOW()
		WHERE id = $1
	`, orderID, totalMinor, string(status))
	if err != nil {
		return fmt.Errorf("finalize order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *checkoutTx) GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	var order domain.Order
	var status string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, total_minor, shipping_address, contact_phone, notes, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(
		&order.ID, &order.UserID, &status, &order.TotalMinor,
		&order.ShippingAddress, &order.ContactPhone, &order.Notes,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		if isPgCode(err, pgCodeLockNotAvailable) {
			return domain.Order{}, domain.ErrLedgerBusy
		}
		return domain.Order{}, fmt.Errorf("lock order row: %w", err)
	}
	order.Status = domain.OrderStatus(status)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT order_id, sku, product_name, size, qty, unit_price_minor, subtotal_minor, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY sku ASC
	`, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.OrderID, &line.SKU, &line.ProductName, &line.Size,
			&line.Qty, &line.UnitPriceMinor, &line.SubtotalMinor, &line.CreatedAt,
		); err != nil {
			return domain.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("iterate order lines: %w", err)
	}
	return order, nil
}

func (t *checkoutTx) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1
	`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

var _ domain.CheckoutStore = (*checkoutStore)(nil)
var _ domain.CheckoutTx = (*checkoutTx)(nil)
