package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/health"
)

const requestTimeout = 15 * time.Second

// RouterOptions — обработчики, монтируемые в роутер. Nil-обработчик
// означает, что его маршруты не поднимаются (каталог без Mongo,
// checkout без движка в тестах и т.п.).
type RouterOptions struct {
	Checkout  *CheckoutHandler
	Orders    *OrdersHandler
	Inventory *InventoryHandler
	Products  *ProductsHandler
	Health    *health.Handler
	Logger    *log.Entry
}

// NewRouter собирает HTTP-роутер API.
func NewRouter(opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", health.LivenessHandler)
	if opts.Health != nil {
		r.Get("/health", opts.Health.ServeHTTP)
		r.Get("/readyz", opts.Health.ReadinessHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if opts.Checkout != nil {
			api.Post("/checkout", opts.Checkout.ServeHTTP)
		}
		if opts.Orders != nil {
			opts.Orders.Register(api)
		}
		if opts.Inventory != nil {
			opts.Inventory.Register(api)
		}
		if opts.Products != nil {
			opts.Products.Register(api)
		}
	})

	return r
}

// requestLogger пишет структурированную строку на каждый запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"elapsed_ms": time.Since(start).Milliseconds(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("http request")
		})
	}
}
