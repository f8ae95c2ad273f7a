package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/service/inventory"
)

// InventoryHandler обслуживает административный доступ к складскому реестру.
type InventoryHandler struct {
	service  *inventory.Service
	validate *validatorv10.Validate
	logger   *log.Entry
}

// NewInventoryHandler создаёт обработчик склада.
func NewInventoryHandler(service *inventory.Service, logger *log.Entry) *InventoryHandler {
	if logger == nil {
		logger = log.WithField("component", "httpapi.inventory")
	}
	return &InventoryHandler{
		service:  service,
		validate: newValidator(),
		logger:   logger,
	}
}

// Register вешает маршруты склада на роутер.
func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory", h.list)
	r.Get("/inventory/{sku}", h.get)
	r.Post("/inventory/{sku}/restock", h.restock)
}

func (h *InventoryHandler) list(w http.ResponseWriter, _ *http.Request) {
	items, err := h.service.List()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]InventoryItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toInventoryItemResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	item, err := h.service.Get(sku)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryItemResponse(item))
}

func (h *InventoryHandler) restock(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	var req RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation_failed",
			Fields: validationFields(err),
		})
		return
	}

	item, err := h.service.Restock(sku, req.Qty)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryItemResponse(item))
}
