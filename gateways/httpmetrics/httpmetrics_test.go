package httpmetrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"herald/core/events"
	"herald/core/jobs"
	"herald/core/metrics"
)

func startGateway(t *testing.T, bus events.Bus) *Gateway {
	t.Helper()
	g := NewGateway()
	if err := g.Configure(map[string]interface{}{"addr": "127.0.0.1:0"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	g.SetEventBus(bus)
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := g.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return g
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from %s, got %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestConfigureKeepsDefaults(t *testing.T) {
	g := NewGateway()
	if err := g.Configure(map[string]interface{}{"addr": ":0"}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if g.config.MetricsPath != "/metrics" {
		t.Errorf("Expected default metrics path, got %s", g.config.MetricsPath)
	}
	if err := g.Configure(map[string]interface{}{"addr": 9090}); err == nil {
		t.Error("Expected a decode error for a numeric addr")
	}
}

func TestServesMetrics(t *testing.T) {
	g := startGateway(t, nil)
	metrics.IncrementSubmitted("welcome_email")

	body := get(t, "http://"+g.Addr()+"/metrics")
	if !strings.Contains(body, "herald_jobs_submitted_total") {
		t.Errorf("Expected submitted counter in /metrics output")
	}
}

func TestHealthTracksJobEvents(t *testing.T) {
	bus := events.New()
	defer bus.Close()
	g := startGateway(t, bus)

	bus.Publish(context.Background(), jobs.JobRetriedEventType,
		jobs.JobEvent{Type: jobs.JobRetriedEventType, Name: "welcome_email", Retries: 9})
	bus.Publish(context.Background(), jobs.JobSucceededEventType,
		jobs.JobEvent{Type: jobs.JobSucceededEventType, Name: "welcome_email", Retries: 9})

	var h Health
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := json.Unmarshal([]byte(get(t, "http://"+g.Addr()+"/healthz")), &h); err != nil {
			t.Fatalf("decode health: %v", err)
		}
		if h.Outcomes[jobs.JobRetriedEventType] == 1 && h.Outcomes[jobs.JobSucceededEventType] == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if h.Status != "ok" {
		t.Errorf("Expected status ok, got %s", h.Status)
	}
	if h.Outcomes[jobs.JobRetriedEventType] != 1 || h.Outcomes[jobs.JobSucceededEventType] != 1 {
		t.Errorf("Unexpected outcomes: %v", h.Outcomes)
	}
	if h.LastEvent == nil || h.LastEvent.Name != "welcome_email" {
		t.Errorf("Expected last event for welcome_email, got %+v", h.LastEvent)
	}
}

func TestStartFailsOnBusyAddress(t *testing.T) {
	first := startGateway(t, nil)

	second := NewGateway()
	if err := second.Configure(map[string]interface{}{"addr": first.Addr()}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("Expected Start to fail on an address in use")
	}
	if err := second.Stop(context.Background()); err != nil {
		t.Errorf("Stop on a gateway that never started should be a no-op, got %v", err)
	}
}

func TestHealthCORS(t *testing.T) {
	g := NewGateway()
	if err := g.Configure(map[string]interface{}{
		"addr":            "127.0.0.1:0",
		"allowed_origins": []string{"*"},
	}); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer g.Stop(context.Background())

	req, err := http.NewRequest(http.MethodGet, "http://"+g.Addr()+"/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "http://dashboard.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin *, got %q", got)
	}
}

func TestMetricsRouteRejectsPost(t *testing.T) {
	g := startGateway(t, nil)
	resp, err := http.Post("http://"+g.Addr()+"/metrics", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}
