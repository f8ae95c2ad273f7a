package catalog

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

const defaultSyncInterval = time.Minute

// variantUpdater — часть каталога, нужная синхронизации (для тестов).
type variantUpdater interface {
	UpdateVariants(ctx context.Context, productID int64, variants []Variant) error
}

// SyncWorker периодически переносит остатки и цены из складского реестра
// в витринные карточки. Реестр — источник истины, каталог отстаёт не
// больше, чем на интервал синхронизации.
type SyncWorker struct {
	ledger   domain.InventoryRepository
	catalog  variantUpdater
	interval time.Duration
	logger   *log.Entry
}

// NewSyncWorker создаёт воркер синхронизации каталога.
func NewSyncWorker(ledger domain.InventoryRepository, catalog *Service, interval time.Duration, logger *log.Entry) *SyncWorker {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if logger == nil {
		logger = log.WithField("component", "catalog-sync")
	}
	return &SyncWorker{
		ledger:   ledger,
		catalog:  catalog,
		interval: interval,
		logger:   logger,
	}
}

// Run запускает периодическую синхронизацию до отмены ctx.
func (w *SyncWorker) Run(ctx context.Context) {
	if err := w.SyncOnce(ctx); err != nil {
		w.logger.WithError(err).Warn("initial catalog sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.WithError(err).Warn("catalog sync failed")
			}
		}
	}
}

// SyncOnce выполняет один проход синхронизации. Карточка, которой нет в
// каталоге, пропускается с предупреждением: реестр может опережать
// наполнение витрины.
func (w *SyncWorker) SyncOnce(ctx context.Context) error {
	items, err := w.ledger.List()
	if err != nil {
		return err
	}

	updated, missing := 0, 0
	for productID, variants := range VariantsFromLedger(items) {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.catalog.UpdateVariants(ctx, productID, variants)
		switch {
		case errors.Is(err, ErrProductNotFound):
			missing++
			w.logger.WithField("product_id", productID).Warn("ledger item has no catalog card")
		case err != nil:
			return err
		default:
			updated++
		}
	}

	w.logger.WithFields(log.Fields{
		"updated": updated,
		"missing": missing,
	}).Debug("catalog sync pass completed")
	return nil
}
