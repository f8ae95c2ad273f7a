package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dcastellanos-dev/tienda-backend/internal/catalog"
	"github.com/dcastellanos-dev/tienda-backend/internal/checkout"
	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
	"github.com/dcastellanos-dev/tienda-backend/internal/health"
	"github.com/dcastellanos-dev/tienda-backend/internal/httpapi"
	"github.com/dcastellanos-dev/tienda-backend/internal/messaging/kafka"
	"github.com/dcastellanos-dev/tienda-backend/internal/notify"
	idemsvc "github.com/dcastellanos-dev/tienda-backend/internal/service/idempotency"
	invsvc "github.com/dcastellanos-dev/tienda-backend/internal/service/inventory"
	orderssvc "github.com/dcastellanos-dev/tienda-backend/internal/service/orders"
	"github.com/dcastellanos-dev/tienda-backend/internal/storage/memory"
	"github.com/dcastellanos-dev/tienda-backend/internal/storage/postgres"
	"github.com/dcastellanos-dev/tienda-backend/internal/version"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Engine     *checkout.Engine
	Orders     *orderssvc.Service
	Inventory  *invsvc.Service
	Catalog    *catalog.Service
	Dispatcher *notify.Dispatcher
	IdemRepo   domain.IdempotencyRepository
	Health     *health.Handler
	Router     *httpapi.RouterOptions
	Logger     *log.Entry

	// фоновые воркеры; запускаются из Run
	Sweeper    *idemsvc.Sweeper
	SyncWorker *catalog.SyncWorker

	pg          *postgres.Store
	kafka       *kafka.Producer
	mongoClient *mongo.Client
	redisClient *redis.Client
}

// NewDependencies создаёт и связывает все зависимости приложения.
// Без TIENDA_POSTGRES_DSN хранилище живёт в памяти — удобно для локальной
// разработки и демо; Kafka, Mongo и Redis подключаются по мере настройки.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	var (
		checkoutStore domain.CheckoutStore
		orderRepo     domain.OrderRepository
		inventoryRepo domain.InventoryRepository
		userRepo      domain.UserRepository
	)

	if cfg.PostgresDSN != "" {
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		deps.pg = pg
		checkoutStore = postgres.NewCheckoutStore(pg)
		orderRepo = postgres.NewOrderRepository(pg)
		inventoryRepo = postgres.NewInventoryRepository(pg)
		userRepo = postgres.NewUserRepository(pg)
		deps.IdemRepo = postgres.NewIdempotencyRepository(pg)
		logger.Info("postgres storage initialized")
	} else {
		store := memory.NewStore()
		seedDemoData(store)
		checkoutStore = store
		orderRepo = store
		inventoryRepo = memory.NewInventoryRepository(store)
		userRepo = memory.NewUserRepository(store)
		deps.IdemRepo = memory.NewIdempotencyRepository()
		logger.Warn("TIENDA_POSTGRES_DSN is not set, using in-memory storage")
	}

	// События и подписчики.
	deps.Dispatcher = notify.NewDispatcher(logger.WithField("component", "notify"), nil)
	deps.Dispatcher.Subscribe(notify.EventOrderPlaced, notify.NewLogSubscriber(nil))
	deps.Dispatcher.Subscribe(notify.EventOrderCancelled, notify.NewLogSubscriber(nil))
	emailSub := notify.NewEmailSubscriber(nil, cfg.EmailFrom)
	deps.Dispatcher.Subscribe(notify.EventOrderPlaced, emailSub)
	deps.Dispatcher.Subscribe(notify.EventOrderUpdated, emailSub)
	deps.Dispatcher.Subscribe(notify.EventOrderCancelled, emailSub)
	stockWatcher := notify.NewLowStockWatcher(nil)
	deps.Dispatcher.Subscribe(notify.EventStockLow, stockWatcher)
	deps.Dispatcher.Subscribe(notify.EventStockOut, stockWatcher)

	// Kafka опционален: без брокеров события остаются внутри процесса.
	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err == nil && producer != nil {
		deps.kafka = producer
		bridge := kafka.NewBridge(producer)
		for _, kind := range []notify.EventKind{
			notify.EventOrderPlaced, notify.EventOrderUpdated, notify.EventOrderCancelled,
			notify.EventStockLow, notify.EventStockOut,
		} {
			deps.Dispatcher.Subscribe(kind, bridge)
		}
	}

	deps.Engine = checkout.NewEngine(checkoutStore, logger.WithField("component", "checkout"))
	deps.Inventory = invsvc.NewService(inventoryRepo, deps.Dispatcher, cfg.LowStockThreshold, nil)
	deps.Orders = orderssvc.NewService(orderRepo, userRepo, checkoutStore, deps.Dispatcher, nil)
	deps.Sweeper = idemsvc.NewSweeper(deps.IdemRepo, idemsvc.SweeperConfig{}, nil)

	// Каталог: Mongo плюс необязательный Redis-кеш.
	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			logger.WithError(err).Warn("failed to connect to mongo, catalog disabled")
		} else {
			deps.mongoClient = client

			var cache *redis.Client
			if cfg.RedisAddr != "" {
				cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
				deps.redisClient = cache
			}

			products := client.Database(cfg.MongoDatabase).Collection("products")
			deps.Catalog = catalog.NewService(products, cache, nil)
			deps.SyncWorker = catalog.NewSyncWorker(inventoryRepo, deps.Catalog, cfg.CatalogSyncInterval, nil)
			logger.Info("catalog initialized")
		}
	}

	deps.Health = buildHealthHandler(ctx, deps)

	router := &httpapi.RouterOptions{
		Checkout:  httpapi.NewCheckoutHandler(deps.Engine, deps.Inventory, deps.Orders, deps.IdemRepo, nil),
		Orders:    httpapi.NewOrdersHandler(deps.Orders, nil),
		Inventory: httpapi.NewInventoryHandler(deps.Inventory, nil),
		Health:    deps.Health,
		Logger:    logger.WithField("component", "httpapi"),
	}
	if deps.Catalog != nil {
		router.Products = httpapi.NewProductsHandler(deps.Catalog, nil)
	}
	deps.Router = router

	return deps, nil
}

// buildHealthHandler регистрирует проверки подключённых компонентов.
func buildHealthHandler(ctx context.Context, deps *Dependencies) *health.Handler {
	handler := health.NewHandler(version.String())

	if deps.pg != nil {
		pg := deps.pg
		handler.RegisterChecker("postgres", health.NewCheckFunc("postgres", func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return pg.Ping(checkCtx)
		}))
	}
	if deps.redisClient != nil {
		cache := deps.redisClient
		handler.RegisterChecker("redis", health.NewCheckFunc("redis", func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return cache.Ping(checkCtx).Err()
		}))
	}
	if deps.mongoClient != nil {
		client := deps.mongoClient
		handler.RegisterChecker("mongo", health.NewCheckFunc("mongo", func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return client.Ping(checkCtx, nil)
		}))
	}

	return handler
}

// Close освобождает внешние подключения в обратном порядке инициализации.
func (d *Dependencies) Close(ctx context.Context) {
	closeKafka(d.kafka, d.Logger)

	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.mongoClient != nil {
		if err := d.mongoClient.Disconnect(ctx); err != nil {
			d.Logger.WithError(err).Warn("failed to disconnect mongo client")
		}
	}
	if d.pg != nil {
		if err := d.pg.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}

// seedDemoData наполняет in-memory хранилище демо-данными магазина.
func seedDemoData(store *memory.Store) {
	now := time.Now().UTC()
	store.SeedUser(domain.User{ID: 1, Name: "Lucía Fernández", Email: "lucia@example.com", Address: "Calle Mayor 1, Madrid", Phone: "+34 600 000 001", Active: true, CreatedAt: now})
	store.SeedUser(domain.User{ID: 2, Name: "Marco Ruiz", Email: "marco@example.com", Address: "Av. del Puerto 15, Valencia", Phone: "+34 600 000 002", Active: true, CreatedAt: now})

	store.SeedItem(domain.InventoryItem{SKU: "CAM-LOC-M", ProductID: 1, ProductName: "Camiseta Local", Size: "M", Available: 25, UnitPriceMinor: 2999, UpdatedAt: now})
	store.SeedItem(domain.InventoryItem{SKU: "CAM-LOC-L", ProductID: 1, ProductName: "Camiseta Local", Size: "L", Available: 18, UnitPriceMinor: 2999, UpdatedAt: now})
	store.SeedItem(domain.InventoryItem{SKU: "CAM-VIS-M", ProductID: 2, ProductName: "Camiseta Visitante", Size: "M", Available: 12, UnitPriceMinor: 3499, UpdatedAt: now})
	store.SeedItem(domain.InventoryItem{SKU: "BUF-CLA-U", ProductID: 3, ProductName: "Bufanda Clásica", Size: "U", Available: 40, UnitPriceMinor: 1499, UpdatedAt: now})
}
