package httpapi

import (
	"errors"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/dcastellanos-dev/tienda-backend/internal/checkout"
	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

// CheckoutLineRequest — одна позиция checkout-запроса.
type CheckoutLineRequest struct {
	SKU string `json:"sku" validate:"required"`
	Qty int32  `json:"qty" validate:"required,gt=0"`
}

// CheckoutRequest — тело POST /api/v1/checkout.
type CheckoutRequest struct {
	UserID          int64                 `json:"user_id" validate:"required,gt=0"`
	ShippingAddress string                `json:"shipping_address" validate:"required,max=500"`
	ContactPhone    string                `json:"contact_phone" validate:"omitempty,max=32"`
	Notes           string                `json:"notes" validate:"omitempty,max=1000"`
	Lines           []CheckoutLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// CheckoutLineResponse — позиция оформленного заказа со снимком цены.
type CheckoutLineResponse struct {
	SKU            string `json:"sku"`
	ProductName    string `json:"product_name"`
	Size           string `json:"size,omitempty"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
}

// CheckoutResponse — тело успешного ответа checkout.
type CheckoutResponse struct {
	OrderID    int64                  `json:"order_id"`
	UserID     int64                  `json:"user_id"`
	Status     string                 `json:"status"`
	TotalMinor int64                  `json:"total_minor"`
	Lines      []CheckoutLineResponse `json:"lines"`
}

// UpdateOrderStatusRequest — тело PATCH статуса заказа.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped completed"`
}

// CancelOrderRequest — тело отмены заказа.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// RestockRequest — тело пополнения склада.
type RestockRequest struct {
	Qty int32 `json:"qty" validate:"required,gt=0"`
}

// OrderLineResponse — позиция заказа в ответах чтения.
type OrderLineResponse struct {
	SKU            string `json:"sku"`
	ProductName    string `json:"product_name"`
	Size           string `json:"size,omitempty"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
}

// OrderResponse — заказ в ответах чтения.
type OrderResponse struct {
	ID              int64               `json:"id"`
	UserID          int64               `json:"user_id"`
	Status          string              `json:"status"`
	TotalMinor      int64               `json:"total_minor"`
	ShippingAddress string              `json:"shipping_address,omitempty"`
	ContactPhone    string              `json:"contact_phone,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	Lines           []OrderLineResponse `json:"lines"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// InventoryItemResponse — складская строка в ответах чтения.
type InventoryItemResponse struct {
	SKU            string    `json:"sku"`
	ProductID      int64     `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Size           string    `json:"size,omitempty"`
	Available      int32     `json:"available"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// newValidator собирает валидатор запросов API.
func newValidator() *validatorv10.Validate {
	return validatorv10.New()
}

func validationFields(err error) map[string]string {
	fields := map[string]string{}
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.StructNamespace()] = fe.Tag()
		}
	} else {
		fields["error"] = err.Error()
	}
	return fields
}

func toCheckoutLines(lines []CheckoutLineRequest) []domain.OrderRequestLine {
	out := make([]domain.OrderRequestLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.OrderRequestLine{SKU: line.SKU, Qty: line.Qty})
	}
	return out
}

func toCheckoutResponse(placed checkout.PlacedOrder) CheckoutResponse {
	lines := make([]CheckoutLineResponse, 0, len(placed.Lines))
	for _, line := range placed.Lines {
		lines = append(lines, CheckoutLineResponse{
			SKU:            line.SKU,
			ProductName:    line.ProductName,
			Size:           line.Size,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  line.SubtotalMinor,
		})
	}
	return CheckoutResponse{
		OrderID:    placed.OrderID,
		UserID:     placed.UserID,
		Status:     string(placed.Status),
		TotalMinor: placed.TotalMinor,
		Lines:      lines,
	}
}

func toOrderResponse(order domain.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLineResponse{
			SKU:            line.SKU,
			ProductName:    line.ProductName,
			Size:           line.Size,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			SubtotalMinor:  line.SubtotalMinor,
		})
	}
	return OrderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		TotalMinor:      order.TotalMinor,
		ShippingAddress: order.ShippingAddress,
		ContactPhone:    order.ContactPhone,
		Notes:           order.Notes,
		Lines:           lines,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	return out
}

func toInventoryItemResponse(item domain.InventoryItem) InventoryItemResponse {
	return InventoryItemResponse{
		SKU:            item.SKU,
		ProductID:      item.ProductID,
		ProductName:    item.ProductName,
		Size:           item.Size,
		Available:      item.Available,
		UnitPriceMinor: item.UnitPriceMinor,
		UpdatedAt:      item.UpdatedAt,
	}
}
