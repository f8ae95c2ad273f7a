package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

const (
	productCacheKeyFormat = "tienda:catalog:product:%d"
	defaultCacheTTL       = 5 * time.Minute
)

// ErrProductNotFound — карточки товара нет в каталоге.
var ErrProductNotFound = errors.New("product not found in catalog")

// Service обслуживает витринный каталог: документы в MongoDB плюс
// сквозной кеш карточек в Redis. Кеш — ускорение чтения, не источник
// истины: промах или недоступный Redis приводят к чтению из Mongo.
type Service struct {
	products *mongo.Collection
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *log.Entry
}

// NewService создаёт каталог поверх коллекции products. Redis опционален:
// с nil-клиентом сервис работает без кеша.
func NewService(products *mongo.Collection, cache *redis.Client, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		products: products,
		cache:    cache,
		cacheTTL: defaultCacheTTL,
		logger:   logger,
	}
}

func productCacheKey(productID int64) string {
	return fmt.Sprintf(productCacheKeyFormat, productID)
}

// GetProduct возвращает карточку товара, сперва пробуя кеш.
func (s *Service) GetProduct(ctx context.Context, productID int64) (Product, error) {
	if cached, ok := s.fromCache(ctx, productID); ok {
		return cached, nil
	}

	var product Product
	err := s.products.FindOne(ctx, bson.M{"product_id": productID}).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("find product %d: %w", productID, err)
	}

	s.toCache(ctx, product)
	return product, nil
}

// ListProducts возвращает карточки каталога, опционально по категории.
func (s *Service) ListProducts(ctx context.Context, category string) ([]Product, error) {
	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}

	cursor, err := s.products.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "product_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// UpsertProduct создаёт или обновляет карточку по product_id и сбрасывает
// её кеш.
func (s *Service) UpsertProduct(ctx context.Context, product Product) error {
	product.UpdatedAt = time.Now().UTC()

	_, err := s.products.UpdateOne(ctx,
		bson.M{"product_id": product.ProductID},
		bson.M{"$set": bson.M{
			"product_id":  product.ProductID,
			"name":        product.Name,
			"description": product.Description,
			"category":    product.Category,
			"image_url":   product.ImageURL,
			"variants":    product.Variants,
			"updated_at":  product.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert product %d: %w", product.ProductID, err)
	}

	s.invalidate(ctx, product.ProductID)
	return nil
}

// UpdateVariants заменяет варианты карточки свежими данными реестра.
func (s *Service) UpdateVariants(ctx context.Context, productID int64, variants []Variant) error {
	result, err := s.products.UpdateOne(ctx,
		bson.M{"product_id": productID},
		bson.M{"$set": bson.M{
			"variants":   variants,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update variants of product %d: %w", productID, err)
	}
	if result.MatchedCount == 0 {
		return ErrProductNotFound
	}

	s.invalidate(ctx, productID)
	return nil
}

func (s *Service) fromCache(ctx context.Context, productID int64) (Product, bool) {
	if s.cache == nil {
		return Product{}, false
	}

	raw, err := s.cache.Get(ctx, productCacheKey(productID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WithError(err).Debug("catalog cache read failed")
		}
		return Product{}, false
	}

	var product Product
	if err := json.Unmarshal(raw, &product); err != nil {
		s.logger.WithError(err).Warn("catalog cache holds malformed product")
		return Product{}, false
	}
	return product, true
}

func (s *Service) toCache(ctx context.Context, product Product) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, productCacheKey(product.ProductID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.WithError(err).Debug("catalog cache write failed")
	}
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, productCacheKey(productID)).Err(); err != nil {
		s.logger.WithError(err).Debug("catalog cache invalidation failed")
	}
}

// VariantsFromLedger группирует складские строки по товару и переводит их
// в витринные варианты. Используется синхронизацией каталога.
func VariantsFromLedger(items []domain.InventoryItem) map[int64][]Variant {
	byProduct := make(map[int64][]Variant)
	for _, item := range items {
		byProduct[item.ProductID] = append(byProduct[item.ProductID], Variant{
			SKU:        item.SKU,
			Size:       item.Size,
			PriceMinor: item.UnitPriceMinor,
			Available:  item.Available,
			InStock:    item.Available > 0,
		})
	}
	return byProduct
}
