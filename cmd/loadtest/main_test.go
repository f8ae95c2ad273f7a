package main

import (
	"net/http"
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	latencies := []float64{5, 1, 3, 2, 4}

	s := summarize(latencies)
	if s.Min != 1 || s.Max != 5 {
		t.Fatalf("min=%v max=%v", s.Min, s.Max)
	}
	if s.Avg != 3 {
		t.Fatalf("avg=%v, expected 3", s.Avg)
	}
	if s.P50 != 3 {
		t.Fatalf("p50=%v, expected 3", s.P50)
	}
	if s.P99 != 5 {
		t.Fatalf("p99=%v, expected 5", s.P99)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil)
	if s.Min != 0 || s.Max != 0 || s.Avg != 0 {
		t.Fatalf("empty summary not zeroed: %+v", s)
	}
}

func TestCollectorClassifiesOutcomes(t *testing.T) {
	c := newCollector()

	c.record(http.StatusCreated, time.Millisecond, false)
	c.record(http.StatusCreated, time.Millisecond, true)
	c.record(http.StatusConflict, time.Millisecond, false)
	c.record(http.StatusUnprocessableEntity, time.Millisecond, false)
	c.record(http.StatusInternalServerError, time.Millisecond, false)
	c.record(0, time.Millisecond, false)

	if c.placed != 2 {
		t.Fatalf("placed=%d, expected 2", c.placed)
	}
	if c.rejected != 2 {
		t.Fatalf("rejected=%d, expected 2", c.rejected)
	}
	if c.failed != 2 {
		t.Fatalf("failed=%d, expected 2", c.failed)
	}
	if c.cancelled != 1 {
		t.Fatalf("cancelled=%d, expected 1", c.cancelled)
	}
	if c.codes["201"] != 2 {
		t.Fatalf("codes=%v", c.codes)
	}
}
