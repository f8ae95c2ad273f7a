package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/checkout"
	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
	"github.com/dcastellanos-dev/tienda-backend/internal/health"
	"github.com/dcastellanos-dev/tienda-backend/internal/notify"
	invsvc "github.com/dcastellanos-dev/tienda-backend/internal/service/inventory"
	orderssvc "github.com/dcastellanos-dev/tienda-backend/internal/service/orders"
	"github.com/dcastellanos-dev/tienda-backend/internal/storage/memory"
)

type apiFixture struct {
	store  *memory.Store
	router *chi.Mux
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "test")
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := memory.NewStore()
	store.SeedUser(domain.User{ID: 7, Name: "Lucía", Email: "lucia@example.com", Active: true, CreatedAt: time.Now()})
	store.SeedItem(domain.InventoryItem{SKU: "X-1", ProductID: 1, ProductName: "Camiseta Local", Size: "M", Available: 10, UnitPriceMinor: 1000})
	store.SeedItem(domain.InventoryItem{SKU: "Y-2", ProductID: 2, ProductName: "Bufanda", Size: "U", Available: 2, UnitPriceMinor: 1500})

	logger := quietLogger()
	dispatcher := notify.NewDispatcher(logger, nil)
	engine := checkout.NewEngineWithoutMetrics(store, logger)
	inventoryService := invsvc.NewService(memory.NewInventoryRepository(store), dispatcher, 5, logger)
	ordersService := orderssvc.NewService(store, memory.NewUserRepository(store), store, dispatcher, logger)

	router := NewRouter(RouterOptions{
		Checkout:  NewCheckoutHandler(engine, inventoryService, ordersService, memory.NewIdempotencyRepository(), logger),
		Orders:    NewOrdersHandler(ordersService, logger),
		Inventory: NewInventoryHandler(inventoryService, logger),
		Health:    health.NewHandler("test"),
		Logger:    logger,
	})

	return &apiFixture{store: store, router: router}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func checkoutBody(qty int32) CheckoutRequest {
	return CheckoutRequest{
		UserID:          7,
		ShippingAddress: "Calle Mayor 1",
		Lines:           []CheckoutLineRequest{{SKU: "X-1", Qty: qty}},
	}
}

func TestCheckoutSuccess(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(3), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalMinor != 3000 {
		t.Fatalf("total=%d, expected 3000", resp.TotalMinor)
	}
	if resp.Status != string(domain.OrderStatusProcessing) {
		t.Fatalf("status=%s, expected processing", resp.Status)
	}
	if len(resp.Lines) != 1 || resp.Lines[0].ProductName != "Camiseta Local" || resp.Lines[0].Size != "M" {
		t.Fatalf("unexpected lines: %+v", resp.Lines)
	}

	item, err := f.store.GetItem("X-1")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Available != 7 {
		t.Fatalf("available=%d, expected 7", item.Available)
	}
}

func TestCheckoutInsufficientStock(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/checkout", CheckoutRequest{
		UserID:          7,
		ShippingAddress: "Calle Mayor 1",
		Lines:           []CheckoutLineRequest{{SKU: "Y-2", Qty: 3}},
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "insufficient_stock" {
		t.Fatalf("error=%s", resp.Error)
	}
	if resp.Details["sku"] != "Y-2" {
		t.Fatalf("details=%v", resp.Details)
	}

	// Сток нетронут.
	item, _ := f.store.GetItem("Y-2")
	if item.Available != 2 {
		t.Fatalf("available=%d, expected 2", item.Available)
	}
}

func TestCheckoutUnknownSKU(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/checkout", CheckoutRequest{
		UserID:          7,
		ShippingAddress: "Calle Mayor 1",
		Lines:           []CheckoutLineRequest{{SKU: "Z-9", Qty: 1}},
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/checkout", CheckoutRequest{
		UserID:          7,
		ShippingAddress: "Calle Mayor 1",
		Lines:           nil,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "validation_failed" {
		t.Fatalf("error=%s", resp.Error)
	}
}

func TestCheckoutIdempotencyReplay(t *testing.T) {
	f := newAPIFixture(t)
	header := map[string]string{"Idempotency-Key": "key-1"}

	first := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(2), header)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status=%d body=%s", first.Code, first.Body.String())
	}

	second := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(2), header)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status=%d body=%s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("replay header missing")
	}

	var firstResp, secondResp CheckoutResponse
	if err := json.Unmarshal(first.Body.Bytes(), &firstResp); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &secondResp); err != nil {
		t.Fatal(err)
	}
	if firstResp.OrderID != secondResp.OrderID {
		t.Fatalf("replay created a new order: %d != %d", firstResp.OrderID, secondResp.OrderID)
	}

	// Сток списан один раз.
	item, _ := f.store.GetItem("X-1")
	if item.Available != 8 {
		t.Fatalf("available=%d, expected 8", item.Available)
	}
}

func TestCheckoutIdempotencyKeyReuse(t *testing.T) {
	f := newAPIFixture(t)
	header := map[string]string{"Idempotency-Key": "key-2"}

	if rec := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(1), header); rec.Code != http.StatusCreated {
		t.Fatalf("first status=%d", rec.Code)
	}

	// Тот же ключ с другим телом.
	rec := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(5), header)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutIdempotencyReplaysBusinessFailure(t *testing.T) {
	f := newAPIFixture(t)
	header := map[string]string{"Idempotency-Key": "key-3"}
	body := CheckoutRequest{
		UserID:          7,
		ShippingAddress: "Calle Mayor 1",
		Lines:           []CheckoutLineRequest{{SKU: "Y-2", Qty: 5}},
	}

	first := f.do(t, http.MethodPost, "/api/v1/checkout", body, header)
	if first.Code != http.StatusConflict {
		t.Fatalf("first status=%d", first.Code)
	}

	second := f.do(t, http.MethodPost, "/api/v1/checkout", body, header)
	if second.Code != http.StatusConflict {
		t.Fatalf("replay status=%d", second.Code)
	}
	if second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("replay header missing")
	}
}

func TestGetOrder(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(1), nil)
	var placed CheckoutResponse
	if err := json.Unmarshal(created.Body.Bytes(), &placed); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", placed.OrderID), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var order OrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if order.ID != placed.OrderID || order.TotalMinor != 1000 {
		t.Fatalf("unexpected order: %+v", order)
	}

	if rec := f.do(t, http.MethodGet, "/api/v1/orders/999", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing order status=%d", rec.Code)
	}
}

func TestCancelOrderRestoresStock(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(4), nil)
	var placed CheckoutResponse
	if err := json.Unmarshal(created.Body.Bytes(), &placed); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", placed.OrderID), CancelOrderRequest{Reason: "changed my mind"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var order OrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if order.Status != string(domain.OrderStatusCancelled) {
		t.Fatalf("status=%s, expected cancelled", order.Status)
	}

	item, _ := f.store.GetItem("X-1")
	if item.Available != 10 {
		t.Fatalf("available=%d, expected 10", item.Available)
	}

	// Повторная отмена — конфликт перехода.
	if rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", placed.OrderID), nil, nil); rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status=%d", rec.Code)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newAPIFixture(t)

	created := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(1), nil)
	var placed CheckoutResponse
	if err := json.Unmarshal(created.Body.Bytes(), &placed); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", placed.OrderID), UpdateOrderStatusRequest{Status: "shipped"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Недопустимый переход: shipped -> processing.
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", placed.OrderID), UpdateOrderStatusRequest{Status: "processing"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	// Отмена через PATCH запрещена валидатором.
	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/orders/%d/status", placed.OrderID), UpdateOrderStatusRequest{Status: "cancelled"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestListUserOrders(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 2; i++ {
		if rec := f.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(1), nil); rec.Code != http.StatusCreated {
			t.Fatalf("checkout %d status=%d", i, rec.Code)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/v1/users/7/orders", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var list []OrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d orders, expected 2", len(list))
	}
}

func TestRestockEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/inventory/Y-2/restock", RestockRequest{Qty: 8}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	var item InventoryItemResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatal(err)
	}
	if item.Available != 10 {
		t.Fatalf("available=%d, expected 10", item.Available)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/inventory/Z-9/restock", RestockRequest{Qty: 1}, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown sku status=%d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rec.Code)
	}
}
