package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
	// maxBatchesPerSweep ограничивает один проход: остаток просроченных
	// ключей дожидается следующего тика, а не держит соединение с БД.
	maxBatchesPerSweep = 20
)

var (
	idempotencyKeysSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tienda_idempotency_keys_swept_total",
		Help: "Expired checkout idempotency keys removed by the sweeper.",
	})
	idempotencySweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tienda_idempotency_sweep_failures_total",
		Help: "Sweep runs that ended with a storage error.",
	})
	idempotencyLastSweepUnix = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tienda_idempotency_last_sweep_timestamp_seconds",
		Help: "Unix time of the last completed sweep.",
	})
)

// SweeperConfig — настройки периодической очистки. Нулевые значения
// заменяются значениями по умолчанию.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Sweeper периодически удаляет просроченные записи idempotency-ключей,
// чтобы таблица воспроизведения checkout-ответов не росла бесконечно.
// Удаление безопасно в любой момент: просроченный ключ уже не участвует
// ни в обработке, ни в воспроизведении.
type Sweeper struct {
	repo     domain.IdempotencyRepository
	logger   *log.Entry
	interval time.Duration
	batch    int
}

// NewSweeper создаёт воркер очистки ключей идемпотентности.
func NewSweeper(repo domain.IdempotencyRepository, cfg SweeperConfig, logger *log.Entry) *Sweeper {
	if logger == nil {
		logger = log.WithField("component", "idempotency-sweeper")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatch
	}
	return &Sweeper{
		repo:     repo,
		logger:   logger,
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
	}
}

// Run выполняет очистку сразу и далее по тикеру до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	swept, err := s.Sweep(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		idempotencySweepFailuresTotal.Inc()
		s.logger.WithError(err).Warn("idempotency sweep failed")
		return
	}

	idempotencyLastSweepUnix.SetToCurrentTime()
	if swept > 0 {
		s.logger.WithField("swept", swept).Info("expired idempotency keys removed")
	}
}

// Sweep удаляет записи с ttl раньше before порциями, не больше
// maxBatchesPerSweep порций за вызов. Возвращает количество удалённых.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	total := 0
	for i := 0; i < maxBatchesPerSweep; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := s.repo.DeleteExpired(before, s.batch)
		if err != nil {
			return total, err
		}
		if deleted > 0 {
			idempotencyKeysSweptTotal.Add(float64(deleted))
			total += deleted
		}
		if deleted < s.batch {
			return total, nil
		}
	}

	s.logger.WithField("swept", total).Warn("sweep stopped at batch cap, leftovers wait for the next run")
	return total, nil
}
