package stress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studiowebux/postdad/internal/dispatch"
	"github.com/studiowebux/postdad/internal/environment"
	"github.com/studiowebux/postdad/internal/pipeline"
	"github.com/studiowebux/postdad/internal/types"
)

func newGenerator() *Generator {
	env := environment.NewStore(types.Environment{Name: "test"})
	return New(pipeline.New(env, dispatch.New(), nil))
}

func TestRunAggregates(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	def := &types.RequestDefinition{Name: "burst", Method: "GET", URL: server.URL}
	stats, err := newGenerator().Run(context.Background(), Config{Workers: 4, Duration: 300 * time.Millisecond}, def)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Completed == 0 {
		t.Fatal("expected some completed invocations")
	}
	if int64(stats.Completed) != atomic.LoadInt64(&hits) {
		t.Errorf("completed = %d, server saw %d", stats.Completed, hits)
	}
	if stats.Errors != 0 {
		t.Errorf("errors = %d, want 0", stats.Errors)
	}
	if stats.StatusCounts[http.StatusOK] != stats.Completed {
		t.Errorf("status histogram = %v, want all 200", stats.StatusCounts)
	}
	if stats.RPS <= 0 {
		t.Errorf("rps = %f, want > 0", stats.RPS)
	}
	if stats.Max() < stats.Min() {
		t.Errorf("max %d < min %d", stats.Max(), stats.Min())
	}
	if avg := stats.AvgDurationMs(); float64(stats.Max()) < avg {
		t.Errorf("max %d < avg %f", stats.Max(), avg)
	}
}

func TestRunCountsStatusMismatchAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	def := &types.RequestDefinition{Name: "down", Method: "GET", URL: server.URL}
	stats, err := newGenerator().Run(context.Background(), Config{Workers: 2, Duration: 100 * time.Millisecond}, def)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Errors != stats.Completed {
		t.Errorf("every 503 should count as error: %d of %d", stats.Errors, stats.Completed)
	}
	if stats.StatusCounts[http.StatusServiceUnavailable] != stats.Completed {
		t.Errorf("histogram should track the 503s: %v", stats.StatusCounts)
	}
}

func TestRunCountsTransportFailures(t *testing.T) {
	def := &types.RequestDefinition{Name: "dead", Method: "GET", URL: "http://127.0.0.1:9/"}
	stats, err := newGenerator().Run(context.Background(), Config{Workers: 1, Duration: 50 * time.Millisecond}, def)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed == 0 {
		t.Fatal("refused connections still complete invocations")
	}
	if stats.Errors != stats.Completed {
		t.Errorf("errors = %d, completed = %d", stats.Errors, stats.Completed)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	def := &types.RequestDefinition{Name: "x", Method: "GET", URL: "http://localhost/"}
	if _, err := newGenerator().Run(context.Background(), Config{Workers: 0, Duration: time.Second}, def); err == nil {
		t.Error("zero workers should be rejected")
	}
	if _, err := newGenerator().Run(context.Background(), Config{Workers: 1, Duration: 0}, def); err == nil {
		t.Error("zero duration should be rejected")
	}
}

func TestRunCancelStopsNewInvocations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	def := &types.RequestDefinition{Name: "cancelled", Method: "GET", URL: server.URL}
	start := time.Now()
	stats, err := newGenerator().Run(ctx, Config{Workers: 2, Duration: 5 * time.Second}, def)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancel should end the run early, took %s", elapsed)
	}
	if stats.Errors != 0 {
		t.Errorf("in-flight invocations should finish cleanly, errors = %d", stats.Errors)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	s := newStats()
	for _, d := range []int64{10, 20, 30, 40} {
		s.add(d, 200, false)
	}
	if got := s.P50(); got != 25 {
		t.Errorf("p50 = %d, want 25", got)
	}
	if got := s.Percentile(100); got != 40 {
		t.Errorf("p100 = %d, want 40", got)
	}
	if got := s.Percentile(0); got != 10 {
		t.Errorf("p0 = %d, want 10", got)
	}
}
