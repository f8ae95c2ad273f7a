package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

type inventoryRepository struct {
	db *sql.DB
}

// NewInventoryRepository создаёт PostgreSQL-реализацию InventoryRepository.
func NewInventoryRepository(store *Store) domain.InventoryRepository {
	return &inventoryRepository{db: store.DB()}
}

const inventoryColumns = `sku, product_id, product_name, size, available, unit_price_minor, updated_at`

func (r *inventoryRepository) Get(sku string) (domain.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	item, err := scanInventoryItem(r.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+` FROM inventory WHERE sku = $1
	`, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryItem{}, domain.ErrSKUNotFound
		}
		return domain.InventoryItem{}, fmt.Errorf("select inventory item: %w", err)
	}
	return item, nil
}

func (r *inventoryRepository) List() ([]domain.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+inventoryColumns+` FROM inventory ORDER BY sku ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0)
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}
	return items, nil
}

// Restock пополняет сток в самостоятельной транзакции с той же дисциплиной
// lock-then-mutate, что и checkout: SELECT ... FOR UPDATE, затем UPDATE.
func (r *inventoryRepository) Restock(sku string, qty int32) (domain.InventoryItem, error) {
	if qty <= 0 {
		return domain.InventoryItem{}, domain.ErrLineQtyInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("begin restock tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists string
	err = tx.QueryRowContext(ctx, `
		SELECT sku FROM inventory WHERE sku = $1 FOR UPDATE
	`, sku).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InventoryItem{}, domain.ErrSKUNotFound
		}
		if isPgCode(err, pgCodeLockNotAvailable) {
			return domain.InventoryItem{}, domain.ErrLedgerBusy
		}
		return domain.InventoryItem{}, fmt.Errorf("lock inventory row: %w", err)
	}

	var item domain.InventoryItem
	item, err = scanInventoryItem(tx.QueryRowContext(ctx, `
		UPDATE inventory
		SET available = available + $2, updated_at = NOW()
		WHERE sku = $1
		RETURNING `+inventoryColumns+`
	`, sku, qty))
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("restock inventory: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.InventoryItem{}, fmt.Errorf("commit restock: %w", err)
	}
	return item, nil
}

func scanInventoryItem(row rowScanner) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := row.Scan(
		&item.SKU, &item.ProductID, &item.ProductName, &item.Size,
		&item.Available, &item.UnitPriceMinor, &item.UpdatedAt,
	)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
