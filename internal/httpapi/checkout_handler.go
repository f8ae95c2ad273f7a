package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/checkout"
	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
	"github.com/dcastellanos-dev/tienda-backend/internal/service/inventory"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyKeyTTL    = 24 * time.Hour
	maxCheckoutBodyBytes = 1 << 20
)

// OrderAnnouncer публикует событие об оформленном заказе.
type OrderAnnouncer interface {
	AnnouncePlaced(order domain.Order)
}

// CheckoutHandler принимает checkout-запросы и проводит их через движок
// оформления. Заголовок Idempotency-Key делает повтор запроса безопасным:
// сохранённый ответ воспроизводится без второй транзакции.
type CheckoutHandler struct {
	engine    *checkout.Engine
	inventory *inventory.Service
	announcer OrderAnnouncer
	idem      domain.IdempotencyRepository
	validate  *validatorv10.Validate
	logger    *log.Entry
}

// NewCheckoutHandler создаёт обработчик checkout. Репозиторий ключей
// опционален: без него заголовок идемпотентности игнорируется.
func NewCheckoutHandler(engine *checkout.Engine, inv *inventory.Service, announcer OrderAnnouncer, idem domain.IdempotencyRepository, logger *log.Entry) *CheckoutHandler {
	if logger == nil {
		logger = log.WithField("component", "httpapi.checkout")
	}
	return &CheckoutHandler{
		engine:    engine,
		inventory: inv,
		announcer: announcer,
		idem:      idem,
		validate:  newValidator(),
		logger:    logger,
	}
}

// ServeHTTP обрабатывает POST /api/v1/checkout.
func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCheckoutBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "cannot read request body")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
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

	key := r.Header.Get(idempotencyKeyHeader)
	if key == "" || h.idem == nil {
		h.place(w, r, req)
		return
	}

	if done := h.claimKey(w, key, hashRequestBody(body)); done {
		return
	}

	status, payload := h.placeBuffered(r, req)
	h.storeOutcome(key, status, payload)
	writeJSON(w, status, payload)
}

// place проводит заказ и пишет ответ напрямую (без идемпотентности).
func (h *CheckoutHandler) place(w http.ResponseWriter, r *http.Request, req CheckoutRequest) {
	status, payload := h.placeBuffered(r, req)
	writeJSON(w, status, payload)
}

// placeBuffered проводит заказ и возвращает HTTP-статус с телом ответа,
// пригодные и для записи клиенту, и для сохранения под idempotency-ключом.
func (h *CheckoutHandler) placeBuffered(r *http.Request, req CheckoutRequest) (int, any) {
	placed, err := h.engine.PlaceOrder(r.Context(), checkout.PlaceOrderRequest{
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		ContactPhone:    req.ContactPhone,
		Notes:           req.Notes,
		Lines:           toCheckoutLines(req.Lines),
	})
	if err != nil {
		return checkoutErrorResponse(err)
	}

	if h.inventory != nil {
		for _, line := range placed.Lines {
			h.inventory.ObserveLevel(line.SKU, line.Remaining)
		}
	}
	if h.announcer != nil {
		h.announcer.AnnouncePlaced(domain.Order{
			ID:         placed.OrderID,
			UserID:     placed.UserID,
			Status:     placed.Status,
			TotalMinor: placed.TotalMinor,
		})
	}

	return http.StatusCreated, toCheckoutResponse(placed)
}

// claimKey пытается занять idempotency-ключ. Возвращает true, если ответ
// уже записан клиенту (воспроизведение сохранённого результата, повтор
// ещё обрабатываемого запроса или конфликт ключа).
func (h *CheckoutHandler) claimKey(w http.ResponseWriter, key, requestHash string) bool {
	_, err := h.idem.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyKeyTTL))
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		existing, getErr := h.idem.Get(key)
		if getErr != nil {
			writeDomainError(w, getErr)
			return true
		}
		switch {
		case existing.Status == domain.IdempotencyStatusProcessing:
			writeError(w, http.StatusConflict, "request_in_flight", "request with this idempotency key is still processing")
		case existing.Status == domain.IdempotencyStatusFailed && existing.HTTPStatus >= http.StatusInternalServerError:
			// Транзиентный сбой не воспроизводится: пускаем повтор на
			// новую попытку, исход перезапишет запись.
			return false
		default:
			h.logger.WithFields(log.Fields{
				"idempotency_key": key,
				"status":          string(existing.Status),
			}).Info("replaying stored checkout response")
			replayStoredResponse(w, existing)
		}
		return true
	}

	writeDomainError(w, err)
	return true
}

// storeOutcome сохраняет результат обработки под ключом. Успех и
// бизнес-отказ воспроизводятся при повторе; транзиентный сбой помечается
// failed, но повтору не мешает.
func (h *CheckoutHandler) storeOutcome(key string, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if status == http.StatusCreated {
		err = h.idem.MarkDone(key, body, status)
	} else {
		err = h.idem.MarkFailed(key, body, status)
	}
	if err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency outcome")
	}
}

func replayStoredResponse(w http.ResponseWriter, record domain.IdempotencyRecord) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

func checkoutErrorResponse(err error) (int, any) {
	recorder := newStatusRecorder()
	writeDomainError(recorder, err)
	return recorder.status, recorder.payload
}

func hashRequestBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// statusRecorder буферизует ответ writeDomainError, чтобы его можно было
// сохранить под idempotency-ключом до отправки клиенту.
type statusRecorder struct {
	header  http.Header
	status  int
	payload ErrorResponse
	buf     bytes.Buffer
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{header: make(http.Header), status: http.StatusOK}
}

func (r *statusRecorder) Header() http.Header { return r.header }

func (r *statusRecorder) WriteHeader(status int) { r.status = status }

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.buf.Write(p)
	_ = json.Unmarshal(r.buf.Bytes(), &r.payload)
	return n, err
}
