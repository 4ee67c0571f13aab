package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"herald/core/config"
	"herald/core/events"
	"herald/core/jobs"
	"herald/core/logger"
	"herald/gateways/httpmetrics"
	"herald/modules/mailer"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("metrics-addr", "", "Serve /metrics and /healthz on this address (overrides gateways.httpmetrics.addr)")
	serveCmd.Flags().Int("demo", 0, "Submit this many demo welcome and verification emails after start")
	serveCmd.Flags().Bool("watch", true, "Reload the log level when the config file changes")
}

// serveCmd runs the dispatcher until the process is signalled.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the herald dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logger.WithComponentName(cmd.Context(), "serve")

		loader := config.NewLoader(configFile)
		cfg, err := loader.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := logger.Configure(cfg.Log.Level, cfg.Log.Development); err != nil {
			return err
		}
		logger.Info(ctx, "Configuration loaded successfully",
			zap.String("file", loader.File()),
			zap.String("environment", cfg.Environment))

		if watch, _ := cmd.Flags().GetBool("watch"); watch && loader.File() != "" {
			loader.AddChangeHook(func(newCfg *config.Config) {
				if err := logger.SetLevel(newCfg.Log.Level); err != nil {
					logger.Warn(ctx, "Ignoring log level from reloaded config", zap.Error(err))
					return
				}
				logger.Info(ctx, "Log level reloaded", zap.String("level", newCfg.Log.Level))
			})
			loader.Watch(func(err error) {
				logger.Warn(ctx, "Config reload rejected", zap.Error(err))
			})
		}

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		demo, _ := cmd.Flags().GetInt("demo")

		app, err := newServer(ctx, cfg, metricsAddr)
		if err != nil {
			return err
		}
		logger.Info(ctx, "Herald dispatcher started")

		if demo > 0 {
			if err := submitDemo(app.dispatcher.Hook(), demo); err != nil {
				logger.Warn(ctx, "Demo submission stopped early", zap.Error(err))
			}
		}

		<-ctx.Done()

		// The signal context is already cancelled; give shutdown its own deadline.
		timeout := time.Duration(cfg.Dispatcher.StopTimeoutSeconds) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := app.shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Error during shutdown", zap.Error(err))
			return err
		}
		logger.Info(ctx, "Herald stopped gracefully")
		return nil
	},
}

// server wires the dispatcher to its handler modules and gateways.
type server struct {
	bus        events.Bus
	mailer     *mailer.Module
	gateway    *httpmetrics.Gateway
	dispatcher *jobs.Dispatcher[mailer.Message]
}

func newServer(ctx context.Context, cfg *config.Config, metricsAddr string) (*server, error) {
	s := &server{bus: events.New(), mailer: mailer.NewModule(nil)}

	if err := s.mailer.Configure(cfg.HandlerConfig(s.mailer.Name())); err != nil {
		s.bus.Close()
		return nil, err
	}
	s.mailer.SetEventBus(s.bus)
	if err := s.mailer.Start(ctx); err != nil {
		s.bus.Close()
		return nil, err
	}

	reg := jobs.NewRegistry[mailer.Message]()
	if err := s.mailer.Register(reg); err != nil {
		s.bus.Close()
		return nil, err
	}

	gwCfg := cfg.GatewayConfig("httpmetrics")
	if metricsAddr != "" {
		gwCfg = map[string]interface{}{"addr": metricsAddr}
	}
	if addr, _ := gwCfg["addr"].(string); addr != "" {
		s.gateway = httpmetrics.NewGateway()
		if err := s.gateway.Configure(gwCfg); err != nil {
			s.bus.Close()
			return nil, err
		}
		s.gateway.SetEventBus(s.bus)
		if err := s.gateway.Start(ctx); err != nil {
			s.bus.Close()
			return nil, err
		}
	}

	s.dispatcher = jobs.Start(ctx, reg,
		jobs.WithLogger(logger.Logger),
		jobs.WithEventBus(s.bus),
		jobs.WithDefaultRetries(cfg.Dispatcher.DefaultRetries),
		jobs.WithPanicRecovery(cfg.Dispatcher.RecoverPanics))
	return s, nil
}

// shutdown stops the dispatcher first so its final events still reach the
// gateway and mailer subscribers.
func (s *server) shutdown(ctx context.Context) error {
	var errs []error
	if err := s.dispatcher.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop dispatcher: %w", err))
	}
	if s.gateway != nil {
		if err := s.gateway.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.mailer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop mailer: %w", err))
	}
	s.bus.Close()
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	return nil
}

func submitDemo(enq jobs.Enqueuer[mailer.Message], n int) error {
	for i := 1; i <= n; i++ {
		to := fmt.Sprintf("user%d@example.com", i)
		username := fmt.Sprintf("user%d", i)
		if err := mailer.SendWelcome(enq, to, username); err != nil {
			return err
		}
		token := uuid.NewString()[:8]
		if err := mailer.SendVerification(enq, to, username, token); err != nil {
			return err
		}
	}
	return nil
}
