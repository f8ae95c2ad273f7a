package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dcastellanos-dev/tienda-backend/internal/app"
	"github.com/dcastellanos-dev/tienda-backend/internal/catalog"
	"github.com/dcastellanos-dev/tienda-backend/internal/storage/postgres"
)

// catalog-sync переносит остатки из складского реестра в витринный каталог.
// По умолчанию выполняет один проход; с -watch работает как демон.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var watch bool
	flag.BoolVar(&watch, "watch", false, "keep syncing on the configured interval instead of a single pass")
	flag.Parse()

	cfg := app.LoadConfig()
	logger := log.WithField("component", "catalog-sync")

	if cfg.PostgresDSN == "" {
		logger.Fatal("TIENDA_POSTGRES_DSN is required")
	}
	if cfg.MongoURI == "" {
		logger.Fatal("TIENDA_MONGO_URI is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.WithError(err).Fatal("open postgres store")
	}
	defer store.Close()

	client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.WithError(err).Fatal("connect to mongo")
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()

	products := client.Database(cfg.MongoDatabase).Collection("products")
	catalogService := catalog.NewService(products, nil, logger)
	worker := catalog.NewSyncWorker(postgres.NewInventoryRepository(store), catalogService, cfg.CatalogSyncInterval, logger)

	if watch {
		logger.WithField("interval", cfg.CatalogSyncInterval.String()).Info("catalog sync daemon started")
		worker.Run(ctx)
		return
	}

	if err := worker.SyncOnce(ctx); err != nil {
		logger.WithError(err).Fatal("catalog sync failed")
	}
	logger.Info("catalog sync completed")
}
