package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const idempotencyHeader = "Idempotency-Key"

type config struct {
	baseURL     string
	total       int
	concurrency int
	timeout     time.Duration
	userID      int64
	skus        []string
	maxQty      int
	cancelRate  int
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type report struct {
	StartedAt       time.Time        `json:"started_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	Total           int64            `json:"total"`
	Placed          int64            `json:"placed"`
	Rejected        int64            `json:"rejected"`
	Failed          int64            `json:"failed"`
	Cancelled       int64            `json:"cancelled"`
	RPS             float64          `json:"rps"`
	StatusCodes     map[string]int64 `json:"status_codes"`
	LatencyMs       latencySummary   `json:"latency_ms"`
}

type collector struct {
	mu        sync.Mutex
	placed    int64
	rejected  int64
	failed    int64
	cancelled int64
	codes     map[string]int64
	latencies []float64
}

func newCollector() *collector {
	return &collector{codes: make(map[string]int64)}
}

func (c *collector) record(status int, latency time.Duration, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.codes[fmt.Sprintf("%d", status)]++
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
	switch {
	case status == http.StatusCreated:
		c.placed++
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		c.rejected++
	default:
		c.failed++
	}
	if cancelled {
		c.cancelled++
	}
}

func summarize(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}
	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	pct := func(p float64) float64 {
		idx := int(math.Ceil(p/100.0*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		return sorted[idx]
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: pct(50),
		P95: pct(95),
		P99: pct(99),
	}
}

type checkoutResponse struct {
	OrderID int64 `json:"order_id"`
}

// runScenario оформляет заказ со случайной позицией и, с вероятностью
// cancelRate процентов, сразу отменяет его.
func runScenario(ctx context.Context, client *http.Client, cfg config, rng *rand.Rand, stats *collector) {
	sku := cfg.skus[rng.Intn(len(cfg.skus))]
	qty := 1 + rng.Intn(cfg.maxQty)

	body, _ := json.Marshal(map[string]any{
		"user_id":          cfg.userID,
		"shipping_address": "Calle de Prueba 1",
		"lines":            []map[string]any{{"sku": sku, "qty": qty}},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/v1/checkout", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, uuid.NewString())

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		stats.record(0, latency, false)
		return
	}

	var placed checkoutResponse
	_ = json.NewDecoder(resp.Body).Decode(&placed)
	_ = resp.Body.Close()

	cancelled := false
	if resp.StatusCode == http.StatusCreated && cfg.cancelRate > 0 && rng.Intn(100) < cfg.cancelRate {
		cancelled = cancelOrder(ctx, client, cfg, placed.OrderID)
	}
	stats.record(resp.StatusCode, latency, cancelled)
}

func cancelOrder(ctx context.Context, client *http.Client, cfg config, orderID int64) bool {
	if orderID == 0 {
		return false
	}
	url := fmt.Sprintf("%s/api/v1/orders/%d/cancel", cfg.baseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return false
	}

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func main() {
	cfg := config{}
	var skuList string

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the checkout service")
	flag.IntVar(&cfg.total, "total", 1000, "total number of checkout scenarios")
	flag.IntVar(&cfg.concurrency, "concurrency", 16, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.Int64Var(&cfg.userID, "user", 1, "user id to place orders for")
	flag.StringVar(&skuList, "skus", "CAM-LOC-M,CAM-LOC-L,CAM-VIS-M,BUF-CLA-U", "comma-separated SKUs to order")
	flag.IntVar(&cfg.maxQty, "max-qty", 3, "maximum quantity per line")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 10, "percentage of placed orders to cancel")
	flag.StringVar(&cfg.outputPath, "output", "", "write JSON report to this file (default: stdout)")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	cfg.skus = strings.Split(skuList, ",")
	if cfg.total <= 0 || cfg.concurrency <= 0 || cfg.maxQty <= 0 || len(cfg.skus) == 0 {
		fmt.Fprintln(os.Stderr, "invalid flags: total, concurrency, max-qty and skus must be positive")
		os.Exit(2)
	}

	client := &http.Client{Timeout: cfg.timeout}
	stats := newCollector()
	jobs := make(chan struct{})

	ctx := context.Background()
	startedAt := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for range jobs {
				runScenario(ctx, client, cfg, rng, stats)
			}
		}(startedAt.UnixNano() + int64(i))
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(startedAt)
	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Total:           int64(cfg.total),
		Placed:          stats.placed,
		Rejected:        stats.rejected,
		Failed:          stats.failed,
		Cancelled:       stats.cancelled,
		RPS:             float64(cfg.total) / elapsed.Seconds(),
		StatusCodes:     stats.codes,
		LatencyMs:       summarize(stats.latencies),
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal report: %v\n", err)
		os.Exit(1)
	}

	if cfg.outputPath != "" {
		if err := os.WriteFile(cfg.outputPath, append(raw, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write report: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(string(raw))
}
