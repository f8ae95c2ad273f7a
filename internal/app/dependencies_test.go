package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/httpapi"
)

func newMemoryDeps(t *testing.T) *Dependencies {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	deps, err := NewDependencies(context.Background(), DefaultConfig(), logger.WithField("component", "test"))
	if err != nil {
		t.Fatalf("build dependencies: %v", err)
	}
	t.Cleanup(func() {
		deps.Close(context.Background())
	})
	return deps
}

func TestNewDependenciesMemoryMode(t *testing.T) {
	deps := newMemoryDeps(t)

	if deps.Engine == nil || deps.Orders == nil || deps.Inventory == nil {
		t.Fatal("core services not wired")
	}
	if deps.IdemRepo == nil || deps.Sweeper == nil {
		t.Fatal("idempotency layer not wired")
	}
	if deps.Catalog != nil || deps.SyncWorker != nil {
		t.Fatal("catalog must stay disabled without mongo URI")
	}
	if deps.Router == nil || deps.Router.Checkout == nil {
		t.Fatal("router not wired")
	}
}

func TestMemoryModeServesCheckout(t *testing.T) {
	deps := newMemoryDeps(t)
	router := httpapi.NewRouter(*deps.Router)

	body := `{"user_id":1,"shipping_address":"Calle Mayor 1","lines":[{"sku":"CAM-LOC-M","qty":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMemoryModeProductsRoutesAbsent(t *testing.T) {
	deps := newMemoryDeps(t)
	router := httpapi.NewRouter(*deps.Router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, expected 404 without catalog", rec.Code)
	}
}
