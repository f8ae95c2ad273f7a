package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config описывает настройки запуска сервиса. Значения читаются из
// переменных окружения TIENDA_*; .env подхватывается, если он есть.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой — хранилище заказов и склада живёт в памяти.
	PostgresDSN string

	KafkaBrokers string

	// MongoURI пустой — каталог не поднимается.
	MongoURI      string
	MongoDatabase string
	RedisAddr     string

	EmailFrom           string
	LowStockThreshold   int32
	CatalogSyncInterval time.Duration
}

// DefaultConfig возвращает базовые адреса и интервалы.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		MongoDatabase:       "tienda",
		EmailFrom:           "pedidos@tienda.example",
		LowStockThreshold:   5,
		CatalogSyncInterval: time.Minute,
	}
}

// LoadConfig читает конфигурацию из окружения поверх значений по умолчанию.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := os.Getenv("TIENDA_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("TIENDA_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("TIENDA_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("TIENDA_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := os.Getenv("TIENDA_MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("TIENDA_MONGO_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}
	if v := os.Getenv("TIENDA_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("TIENDA_EMAIL_FROM"); v != "" {
		cfg.EmailFrom = v
	}
	if v := os.Getenv("TIENDA_LOW_STOCK_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 32); err == nil && parsed > 0 {
			cfg.LowStockThreshold = int32(parsed)
		}
	}
	if v := os.Getenv("TIENDA_CATALOG_SYNC_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cfg.CatalogSyncInterval = parsed
		}
	}
	return cfg
}
