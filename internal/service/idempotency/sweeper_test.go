package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dcastellanos-dev/tienda-backend/internal/domain"
	"github.com/dcastellanos-dev/tienda-backend/internal/storage/memory"
)

func TestSweeper_RemovesOnlyExpiredKeys(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for _, key := range []string{"chk-a", "chk-b", "chk-c"} {
		if _, err := repo.CreateProcessing(key, "hash-"+key, now.Add(-time.Hour)); err != nil {
			t.Fatalf("seed expired key %s: %v", key, err)
		}
	}
	if _, err := repo.CreateProcessing("chk-fresh", "hash-fresh", now.Add(time.Hour)); err != nil {
		t.Fatalf("seed fresh key: %v", err)
	}

	sweeper := NewSweeper(repo, SweeperConfig{BatchSize: 2}, nil)

	swept, err := sweeper.Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 3 {
		t.Fatalf("swept=%d, expected 3", swept)
	}

	if _, err := repo.Get("chk-a"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expired key must be gone, got %v", err)
	}
	if _, err := repo.Get("chk-fresh"); err != nil {
		t.Fatalf("fresh key must survive the sweep: %v", err)
	}
}

func TestSweeper_StopsAtBatchCap(t *testing.T) {
	t.Parallel()

	// Репозиторий бесконечно отдаёт полные порции: проход обязан остановиться
	// на лимите, а не крутиться вечно.
	repo := &sweepRepoStub{
		deleteExpired: func(time.Time, int) (int, error) {
			return 2, nil
		},
	}

	sweeper := NewSweeper(repo, SweeperConfig{BatchSize: 2}, nil)

	swept, err := sweeper.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 2*maxBatchesPerSweep {
		t.Fatalf("swept=%d, expected %d", swept, 2*maxBatchesPerSweep)
	}
}

func TestSweeper_StorageErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	repo := &sweepRepoStub{
		deleteExpired: func(time.Time, int) (int, error) {
			return 0, boom
		},
	}

	sweeper := NewSweeper(repo, SweeperConfig{}, nil)

	if _, err := sweeper.Sweep(context.Background(), time.Now().UTC()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSweeper_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	sweeper := NewSweeper(memory.NewIdempotencyRepository(), SweeperConfig{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}

// sweepRepoStub подменяет только DeleteExpired; остальные методы интерфейса
// в этих тестах не вызываются.
type sweepRepoStub struct {
	domain.IdempotencyRepository
	deleteExpired func(before time.Time, limit int) (int, error)
}

func (s *sweepRepoStub) DeleteExpired(before time.Time, limit int) (int, error) {
	return s.deleteExpired(before, limit)
}
