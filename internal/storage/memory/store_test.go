package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

func newSeededStore() *Store {
	store := NewStore()
	store.SeedUser(domain.User{ID: 1, Name: "Lucía Fernández", Email: "lucia@example.com", Active: true})
	store.SeedItem(domain.InventoryItem{SKU: "CAM-LOC-M", ProductID: 1, ProductName: "Camiseta Local", Size: "M", Available: 10, UnitPriceMinor: 2999})
	store.SeedItem(domain.InventoryItem{SKU: "BUF-CLA-U", ProductID: 3, ProductName: "Bufanda Clásica", Size: "U", Available: 5, UnitPriceMinor: 1499})
	return store
}

func placeTestOrder(t *testing.T, store *Store, sku string, qty int32) int64 {
	t.Helper()

	var orderID int64
	err := store.WithinCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		var err error
		orderID, err = tx.InsertOrderHeader(context.Background(), 1, "Calle Mayor 1", "", "")
		if err != nil {
			return err
		}
		line, err := tx.LockStock(context.Background(), sku)
		if err != nil {
			return err
		}
		if err := tx.InsertOrderLine(context.Background(), domain.OrderLine{
			OrderID:        orderID,
			SKU:            line.SKU,
			ProductName:    line.ProductName,
			Size:           line.Size,
			Qty:            qty,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  int64(qty) * line.UnitPriceMinor,
		}); err != nil {
			return err
		}
		if err := tx.DecrementStock(context.Background(), sku, qty); err != nil {
			return err
		}
		return tx.FinalizeOrder(context.Background(), orderID, int64(qty)*line.UnitPriceMinor, domain.OrderStatusProcessing)
	})
	require.NoError(t, err)
	return orderID
}

func TestStoreCommitAppliesBufferedWrites(t *testing.T) {
	store := newSeededStore()

	orderID := placeTestOrder(t, store, "CAM-LOC-M", 3)

	order, err := store.Get(orderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, order.Status)
	require.Equal(t, int64(3*2999), order.TotalMinor)
	require.Len(t, order.Lines, 1)

	item, err := store.GetItem("CAM-LOC-M")
	require.NoError(t, err)
	require.Equal(t, int32(7), item.Available)
}

func TestStoreRollbackDiscardsBufferedWrites(t *testing.T) {
	store := newSeededStore()

	boom := errors.New("boom")
	err := store.WithinCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		if _, err := tx.InsertOrderHeader(context.Background(), 1, "Calle Mayor 1", "", ""); err != nil {
			return err
		}
		if _, err := tx.LockStock(context.Background(), "CAM-LOC-M"); err != nil {
			return err
		}
		if err := tx.DecrementStock(context.Background(), "CAM-LOC-M", 4); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	item, err := store.GetItem("CAM-LOC-M")
	require.NoError(t, err)
	require.Equal(t, int32(10), item.Available)

	orders, err := store.ListByUser(1, 0)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestStoreMutationRequiresRowLock(t *testing.T) {
	store := newSeededStore()

	err := store.WithinCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		return tx.DecrementStock(context.Background(), "CAM-LOC-M", 1)
	})
	require.Error(t, err)
}

func TestStoreLockContentionReturnsBusy(t *testing.T) {
	store := newSeededStore()
	store.SetLockWait(20 * time.Millisecond)

	// Конкурент удерживает строчную блокировку.
	sem := store.sem("sku:CAM-LOC-M")
	sem <- struct{}{}
	defer func() { <-sem }()

	err := store.WithinCheckout(context.Background(), func(tx domain.CheckoutTx) error {
		_, err := tx.LockStock(context.Background(), "CAM-LOC-M")
		return err
	})
	require.ErrorIs(t, err, domain.ErrLedgerBusy)
}

func TestStoreUpdateStatusCompareAndSet(t *testing.T) {
	store := newSeededStore()
	orderID := placeTestOrder(t, store, "CAM-LOC-M", 1)

	require.NoError(t, store.UpdateStatus(orderID, domain.OrderStatusProcessing, domain.OrderStatusShipped))

	err := store.UpdateStatus(orderID, domain.OrderStatusProcessing, domain.OrderStatusShipped)
	require.ErrorIs(t, err, domain.ErrStatusTransition)

	err = store.UpdateStatus(999, domain.OrderStatusProcessing, domain.OrderStatusShipped)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestStoreRestock(t *testing.T) {
	store := newSeededStore()

	item, err := store.Restock("BUF-CLA-U", 15)
	require.NoError(t, err)
	require.Equal(t, int32(20), item.Available)

	_, err = store.Restock("BUF-CLA-U", 0)
	require.ErrorIs(t, err, domain.ErrLineQtyInvalid)

	_, err = store.Restock("NO-SUCH-SKU", 1)
	require.ErrorIs(t, err, domain.ErrSKUNotFound)
}

func TestIdempotencyRepositoryDeleteExpiredOldestFirst(t *testing.T) {
	repo := NewIdempotencyRepository()
	now := time.Now().UTC()

	_, err := repo.CreateProcessing("k-old", "h1", now.Add(-3*time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateProcessing("k-older", "h2", now.Add(-5*time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateProcessing("k-fresh", "h3", now.Add(time.Hour))
	require.NoError(t, err)

	deleted, err := repo.DeleteExpired(now, 1)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	// Первой удаляется самая старая запись.
	_, err = repo.Get("k-older")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("k-old")
	require.NoError(t, err)

	deleted, err = repo.DeleteExpired(now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = repo.Get("k-fresh")
	require.NoError(t, err)
}
