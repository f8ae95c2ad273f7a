package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dcastellanos-dev/tienda-backend/internal/catalog"
	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

// ErrorResponse — JSON-конверт ошибки API.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, slug, message string) {
	writeJSON(w, code, ErrorResponse{Error: slug, Message: message})
}

// writeDomainError переводит доменную ошибку в HTTP-ответ.
// Ошибка остатка несёт детали (sku, available, requested), чтобы клиент
// мог показать покупателю, чего именно не хватило.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "insufficient_stock",
			Message: insufficient.Error(),
			Details: map[string]any{
				"sku":       insufficient.SKU,
				"available": insufficient.Available,
				"requested": insufficient.Requested,
			},
		})
		return
	}

	var unknownSKU *domain.UnknownSKUError
	if errors.As(err, &unknownSKU) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "unknown_sku",
			Message: unknownSKU.Error(),
			Details: map[string]any{"sku": unknownSKU.SKU},
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrSKUNotFound):
		writeError(w, http.StatusNotFound, "sku_not_found", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, domain.ErrUserInvalid):
		writeError(w, http.StatusUnprocessableEntity, "user_invalid", err.Error())
	case errors.Is(err, domain.ErrStatusTransition):
		writeError(w, http.StatusConflict, "status_transition_invalid", err.Error())
	case errors.Is(err, domain.ErrLedgerBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "ledger_busy", err.Error())
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", err.Error())
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		writeError(w, http.StatusConflict, "request_in_flight", err.Error())
	case domain.IsBusinessError(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
