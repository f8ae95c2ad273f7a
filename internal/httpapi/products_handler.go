package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/catalog"
)

// ProductsHandler обслуживает витринный каталог.
type ProductsHandler struct {
	catalog *catalog.Service
	logger  *log.Entry
}

// NewProductsHandler создаёт обработчик каталога.
func NewProductsHandler(service *catalog.Service, logger *log.Entry) *ProductsHandler {
	if logger == nil {
		logger = log.WithField("component", "httpapi.products")
	}
	return &ProductsHandler{catalog: service, logger: logger}
}

// Register вешает маршруты каталога на роутер.
func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{id}", h.get)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}
