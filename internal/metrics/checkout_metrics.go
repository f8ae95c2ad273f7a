package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики транзакций оформления заказа.
type CheckoutMetrics struct {
	attempts prometheus.Counter
	placed   prometheus.Counter
	rejected *prometheus.CounterVec

	duration prometheus.Histogram

	// Сумма зафиксированных заказов в центах.
	revenueMinor prometheus.Counter

	notifyDelivered prometheus.Counter
	notifyDropped   prometheus.Counter
}

// NewCheckoutMetrics создаёт и регистрирует метрики checkout.
func NewCheckoutMetrics() *CheckoutMetrics {
	return newCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		attempts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tienda_checkout_attempts_total",
			Help: "Total number of checkout attempts",
		}),
		placed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tienda_checkout_placed_total",
			Help: "Total number of successfully placed orders",
		}),
		rejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "tienda_checkout_rejected_total",
			Help: "Total number of rejected checkouts grouped by reason",
		}, []string{"reason"}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "tienda_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		revenueMinor: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tienda_checkout_revenue_minor_total",
			Help: "Sum of committed order totals in minor currency units",
		}),
		notifyDelivered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tienda_notify_delivered_total",
			Help: "Total number of notification deliveries to subscribers",
		}),
		notifyDropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tienda_notify_dropped_total",
			Help: "Total number of notification deliveries dropped due to subscriber errors",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordAttempt увеличивает счётчик попыток оформления.
func (m *CheckoutMetrics) RecordAttempt() {
	m.attempts.Inc()
}

// RecordPlaced фиксирует успешный заказ и его итог.
func (m *CheckoutMetrics) RecordPlaced(totalMinor int64) {
	m.placed.Inc()
	m.revenueMinor.Add(float64(totalMinor))
}

// RecordRejected увеличивает счётчик отклонённых попыток по причине:
// validation, business, busy или storage.
func (m *CheckoutMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// RecordDuration записывает длительность транзакции оформления.
func (m *CheckoutMetrics) RecordDuration(duration time.Duration) {
	m.duration.Observe(duration.Seconds())
}

// RecordNotifyDelivered увеличивает счётчик доставленных уведомлений.
func (m *CheckoutMetrics) RecordNotifyDelivered() {
	m.notifyDelivered.Inc()
}

// RecordNotifyDropped увеличивает счётчик потерянных уведомлений.
func (m *CheckoutMetrics) RecordNotifyDropped() {
	m.notifyDropped.Inc()
}
