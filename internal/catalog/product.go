package catalog

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Variant — вариант товара (конкретный размер) с витринными данными.
// Остатки здесь денормализованы из складского реестра и могут отставать
// до очередного прохода синхронизации; источником истины для продажи
// остаётся реестр.
type Variant struct {
	SKU        string `bson:"sku" json:"sku"`
	Size       string `bson:"size" json:"size"`
	PriceMinor int64  `bson:"price_minor" json:"price_minor"`
	Available  int32  `bson:"available" json:"available"`
	InStock    bool   `bson:"in_stock" json:"in_stock"`
}

// Product — витринная карточка товара в каталоге.
type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProductID   int64              `bson:"product_id" json:"product_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	ImageURL    string             `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Variants    []Variant          `bson:"variants" json:"variants"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// InStock сообщает, есть ли хотя бы один вариант в наличии.
func (p *Product) InStock() bool {
	for _, v := range p.Variants {
		if v.InStock {
			return true
		}
	}
	return false
}
