package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

func TestCheckoutStore_PlaceOrderFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationFixtures(t, store)

	checkoutStore := NewCheckoutStore(store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var orderID int64
	err := checkoutStore.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		active, err := tx.UserActive(ctx, 1)
		if err != nil {
			return err
		}
		if !active {
			t.Fatal("user 1 must be active")
		}

		inactive, err := tx.UserActive(ctx, 2)
		if err != nil {
			return err
		}
		if inactive {
			t.Fatal("user 2 must be inactive")
		}

		orderID, err = tx.InsertOrderHeader(ctx, 1, "Calle Mayor 1, Madrid", "+34 600 000 001", "")
		if err != nil {
			return err
		}

		line, err := tx.LockStock(ctx, "CAM-LOC-M")
		if err != nil {
			return err
		}
		if line.Available != 10 {
			t.Fatalf("available=%d, expected 10", line.Available)
		}

		if err := tx.InsertOrderLine(ctx, domain.OrderLine{
			OrderID:        orderID,
			SKU:            line.SKU,
			ProductName:    line.ProductName,
			Size:           line.Size,
			Qty:            3,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  3 * line.UnitPriceMinor,
		}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, line.SKU, 3); err != nil {
			return err
		}
		return tx.FinalizeOrder(ctx, orderID, 3*line.UnitPriceMinor, domain.OrderStatusProcessing)
	})
	if err != nil {
		t.Fatalf("checkout transaction: %v", err)
	}

	orders := NewOrderRepository(store)
	order, err := orders.Get(orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("status=%s", order.Status)
	}
	if order.TotalMinor != 3*2999 {
		t.Fatalf("total=%d", order.TotalMinor)
	}
	if len(order.Lines) != 1 || order.Lines[0].ProductName != "Camiseta Local" {
		t.Fatalf("lines=%+v", order.Lines)
	}

	item, err := NewInventoryRepository(store).Get("CAM-LOC-M")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if item.Available != 7 {
		t.Fatalf("available=%d, expected 7", item.Available)
	}
}

func TestCheckoutStore_RollbackOnError(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationFixtures(t, store)

	checkoutStore := NewCheckoutStore(store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	boom := errors.New("boom")
	err := checkoutStore.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		orderID, err := tx.InsertOrderHeader(ctx, 1, "Calle Mayor 1", "", "")
		if err != nil {
			return err
		}
		if _, err := tx.LockStock(ctx, "BUF-CLA-U"); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, "BUF-CLA-U", 5); err != nil {
			return err
		}
		_ = orderID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// Откат: сток и заказы нетронуты.
	item, err := NewInventoryRepository(store).Get("BUF-CLA-U")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if item.Available != 40 {
		t.Fatalf("available=%d, expected 40", item.Available)
	}

	list, err := NewOrderRepository(store).ListByUser(1, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("orders after rollback: %d", len(list))
	}
}

func TestCheckoutStore_LockStockUnknownSKU(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationFixtures(t, store)

	checkoutStore := NewCheckoutStore(store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := checkoutStore.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		_, err := tx.LockStock(ctx, "NO-SUCH-SKU")
		return err
	})
	if !errors.Is(err, domain.ErrSKUNotFound) {
		t.Fatalf("expected ErrSKUNotFound, got %v", err)
	}
}

func TestCheckoutStore_CancelRestoresStock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationFixtures(t, store)

	checkoutStore := NewCheckoutStore(store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var orderID int64
	err := checkoutStore.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		var err error
		orderID, err = tx.InsertOrderHeader(ctx, 1, "Calle Mayor 1", "", "")
		if err != nil {
			return err
		}
		line, err := tx.LockStock(ctx, "CAM-LOC-L")
		if err != nil {
			return err
		}
		if err := tx.InsertOrderLine(ctx, domain.OrderLine{
			OrderID:        orderID,
			SKU:            line.SKU,
			ProductName:    line.ProductName,
			Size:           line.Size,
			Qty:            2,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  2 * line.UnitPriceMinor,
		}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, line.SKU, 2); err != nil {
			return err
		}
		return tx.FinalizeOrder(ctx, orderID, 2*line.UnitPriceMinor, domain.OrderStatusProcessing)
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	err = checkoutStore.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.Cancellable() {
			t.Fatalf("order in status %s is not cancellable", order.Status)
		}
		for _, line := range order.Lines {
			if _, err := tx.LockStock(ctx, line.SKU); err != nil {
				return err
			}
			if err := tx.IncrementStock(ctx, line.SKU, line.Qty); err != nil {
				return err
			}
		}
		return tx.UpdateOrderStatus(ctx, orderID, domain.OrderStatusCancelled)
	})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	item, err := NewInventoryRepository(store).Get("CAM-LOC-L")
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if item.Available != 2 {
		t.Fatalf("available=%d, expected 2", item.Available)
	}

	order, err := NewOrderRepository(store).Get(orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("status=%s", order.Status)
	}
}

func TestOrderRepository_UpdateStatusCAS(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationFixtures(t, store)

	checkoutStore := NewCheckoutStore(store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var orderID int64
	err := checkoutStore.WithinCheckout(ctx, func(tx domain.CheckoutTx) error {
		var err error
		orderID, err = tx.InsertOrderHeader(ctx, 1, "Calle Mayor 1", "", "")
		if err != nil {
			return err
		}
		return tx.FinalizeOrder(ctx, orderID, 0, domain.OrderStatusProcessing)
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	orders := NewOrderRepository(store)
	if err := orders.UpdateStatus(orderID, domain.OrderStatusProcessing, domain.OrderStatusShipped); err != nil {
		t.Fatalf("processing -> shipped: %v", err)
	}

	// Повтор с устаревшим from — конфликт.
	err = orders.UpdateStatus(orderID, domain.OrderStatusProcessing, domain.OrderStatusShipped)
	if !errors.Is(err, domain.ErrStatusTransition) {
		t.Fatalf("expected ErrStatusTransition, got %v", err)
	}

	err = orders.UpdateStatus(99999, domain.OrderStatusProcessing, domain.OrderStatusShipped)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestInventoryRepository_Restock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationFixtures(t, store)

	repo := NewInventoryRepository(store)

	item, err := repo.Restock("CAM-LOC-L", 8)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if item.Available != 10 {
		t.Fatalf("available=%d, expected 10", item.Available)
	}

	if _, err := repo.Restock("NO-SUCH-SKU", 1); !errors.Is(err, domain.ErrSKUNotFound) {
		t.Fatalf("expected ErrSKUNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_Flow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	repo := NewIdempotencyRepository(store)
	ttl := time.Now().UTC().Add(time.Hour)

	record, err := repo.CreateProcessing("key-1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if record.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("status=%s", record.Status)
	}

	if _, err := repo.CreateProcessing("key-1", "hash-1", ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if _, err := repo.CreateProcessing("key-1", "hash-2", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}

	if err := repo.MarkDone("key-1", []byte(`{"order_id":1}`), 201); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	stored, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if stored.Status != domain.IdempotencyStatusDone || stored.HTTPStatus != 201 {
		t.Fatalf("record=%+v", stored)
	}

	// Просроченные записи удаляются, свежие остаются.
	if _, err := repo.CreateProcessing("key-old", "hash-old", time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("create expired record: %v", err)
	}
	deleted, err := repo.DeleteExpired(time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted=%d, expected 1", deleted)
	}
	if _, err := repo.Get("key-1"); err != nil {
		t.Fatalf("fresh record must survive cleanup: %v", err)
	}
}
