// Package httpmetrics exposes the Prometheus registry and a health summary of
// the dispatcher over HTTP.
package httpmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"herald/core/events"
	"herald/core/jobs"
	"herald/core/logger"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds configuration settings specific to the metrics gateway.
type Config struct {
	Addr           string   `mapstructure:"addr"`
	MetricsPath    string   `mapstructure:"metrics_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // CORS for /healthz dashboards; empty disables
}

// Health is the body served on /healthz.
type Health struct {
	Status    string         `json:"status"`
	Outcomes  map[string]int `json:"outcomes"`
	LastEvent *jobs.JobEvent `json:"last_event,omitempty"`
}

// Gateway serves /metrics and /healthz.
type Gateway struct {
	mu       sync.Mutex
	config   Config
	eventBus events.Bus
	server   *http.Server
	listener net.Listener
	cancels  []func()
	outcomes map[string]int
	last     *jobs.JobEvent
	serveErr chan error
}

// NewGateway creates a gateway listening on :9090 unless configured otherwise.
func NewGateway() *Gateway {
	return &Gateway{
		config:   Config{Addr: ":9090", MetricsPath: "/metrics"},
		outcomes: make(map[string]int),
	}
}

// Name returns the unique name of the gateway.
func (g *Gateway) Name() string { return "httpmetrics" }

// SetEventBus provides the gateway with the dispatcher's event bus.
func (g *Gateway) SetEventBus(bus events.Bus) {
	g.eventBus = bus
}

// Configure decodes the gateway settings. Empty fields keep their defaults.
func (g *Gateway) Configure(cfg interface{}) error {
	if cfg == nil {
		return nil
	}
	var gwCfg Config
	if err := mapstructure.Decode(cfg, &gwCfg); err != nil {
		return fmt.Errorf("failed to decode httpmetrics config: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if gwCfg.Addr != "" {
		g.config.Addr = gwCfg.Addr
	}
	if gwCfg.MetricsPath != "" {
		g.config.MetricsPath = gwCfg.MetricsPath
	}
	g.config.AllowedOrigins = gwCfg.AllowedOrigins
	return nil
}

// Addr returns the bound listen address once started.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Start binds the listener and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return nil
	}
	ctx = logger.WithComponentName(ctx, g.Name())

	if g.eventBus != nil {
		for _, topic := range []string{
			jobs.JobSucceededEventType,
			jobs.JobRetriedEventType,
			jobs.JobFailedEventType,
			jobs.JobDroppedEventType,
		} {
			ch, cancel, err := g.eventBus.Subscribe(topic)
			if err != nil {
				g.cancelSubscriptions()
				return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
			}
			g.cancels = append(g.cancels, cancel)
			go g.handleEvents(ch)
		}
	}

	ln, err := net.Listen("tcp", g.config.Addr)
	if err != nil {
		g.cancelSubscriptions()
		return fmt.Errorf("failed to listen on %s: %w", g.config.Addr, err)
	}

	g.listener = ln
	g.server = &http.Server{Handler: g.routes(), ReadHeaderTimeout: 5 * time.Second}
	g.serveErr = make(chan error, 1)

	go func(srv *http.Server, errCh chan<- error) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Metrics server failed", zap.Error(err))
			errCh <- err
		}
		close(errCh)
	}(g.server, g.serveErr)

	logger.Info(ctx, "Metrics gateway listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", g.config.MetricsPath))
	return nil
}

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if len(g.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: g.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
	}

	r.Method(http.MethodGet, g.config.MetricsPath, promhttp.Handler())
	r.Get("/healthz", g.serveHealth)
	return r
}

// Stop shuts the HTTP server down and drops the event subscriptions.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	srv, errCh := g.server, g.serveErr
	g.server, g.listener = nil, nil
	g.cancelSubscriptions()
	g.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	return <-errCh
}

// cancelSubscriptions must be called with g.mu held.
func (g *Gateway) cancelSubscriptions() {
	for _, cancel := range g.cancels {
		cancel()
	}
	g.cancels = nil
}

func (g *Gateway) handleEvents(ch <-chan events.TypedEvent) {
	for ev := range ch {
		jobEv, ok := ev.(jobs.JobEvent)
		if !ok {
			continue
		}
		g.mu.Lock()
		g.outcomes[jobEv.Type]++
		g.last = &jobEv
		g.mu.Unlock()
	}
}

func (g *Gateway) health() Health {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := Health{Status: "ok", Outcomes: make(map[string]int, len(g.outcomes)), LastEvent: g.last}
	for k, v := range g.outcomes {
		h.Outcomes[k] = v
	}
	return h
}

func (g *Gateway) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(g.health()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
