package observability

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/ShopStalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(testLogger)
	m.PagesVisited.Add(3)
	m.RecordStrategy(types.StrategyPlatformAPI)
	m.RecordStrategy(types.StrategyHeuristicDOM)
	m.RecordStrategy("unknown")

	srv := httptest.NewServer(m.Handler("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	for _, want := range []string{
		"shopstalk_pages_visited_total 3",
		"shopstalk_strategy_platform_api_total 1",
		"shopstalk_strategy_heuristic_dom_total 1",
		"# TYPE shopstalk_queue_depth gauge",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status %d", resp.StatusCode)
	}

	if got := m.Snapshot()["shopstalk_strategy_structured_data_total"]; got != 0 {
		t.Errorf("unexpected structured wins %d", got)
	}
}
