package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"herald/core/config"
	"herald/core/jobs"
	"herald/core/metrics"
	"herald/modules/mailer"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigInitThenValidate(t *testing.T) {
	temp := t.TempDir()
	out := filepath.Join(temp, "herald.yaml")

	if err := configInitCmd.Flags().Set("output", out); err != nil {
		t.Fatalf("set output flag: %v", err)
	}
	var buf bytes.Buffer
	configInitCmd.SetOut(&buf)
	if err := configInitCmd.RunE(configInitCmd, nil); err != nil {
		t.Fatalf("run init: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected config file at %s: %v", out, err)
	}

	// A second init without --force must not clobber the file.
	if err := configInitCmd.RunE(configInitCmd, nil); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}

	configFile = out
	defer func() { configFile = "" }()
	buf.Reset()
	configValidateCmd.SetOut(&buf)
	if err := configValidateCmd.RunE(configValidateCmd, nil); err != nil {
		t.Fatalf("run validate: %v", err)
	}
	if !strings.Contains(buf.String(), out) {
		t.Errorf("expected validate output to name %s, got %q", out, buf.String())
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	out := filepath.Join(t.TempDir(), "herald.yaml")
	if err := os.WriteFile(out, []byte("config_version: 2.0.0\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	configFile = out
	defer func() { configFile = "" }()

	if err := configValidateCmd.RunE(configValidateCmd, nil); err == nil {
		t.Fatal("expected validate to reject an unsupported config_version")
	}
}

func TestServerRunsDemoJobs(t *testing.T) {
	cfg := config.Default()
	cfg.Handlers["mailer"]["fail_first"] = 1

	before := testutil.ToFloat64(metrics.JobsProcessed.WithLabelValues(mailer.WelcomeEmailJob, metrics.StatusSucceeded))
	retriedBefore := testutil.ToFloat64(metrics.JobsProcessed.WithLabelValues(mailer.WelcomeEmailJob, metrics.StatusRetried))

	s, err := newServer(context.Background(), cfg, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if s.gateway == nil || s.gateway.Addr() == "" {
		t.Fatal("expected the metrics gateway to be listening")
	}
	succeeded, cancelSub, err := s.bus.Subscribe(jobs.JobSucceededEventType)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelSub()

	if err := submitDemo(s.dispatcher.Hook(), 3); err != nil {
		t.Fatalf("submitDemo: %v", err)
	}

	// shutdown discards queued retries; wait for 3 welcome and 3 verification emails.
	for i := 0; i < 6; i++ {
		select {
		case <-succeeded:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for demo emails, %d of 6 sent", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := testutil.ToFloat64(metrics.JobsProcessed.WithLabelValues(mailer.WelcomeEmailJob, metrics.StatusSucceeded)) - before; got != 3 {
		t.Errorf("expected 3 welcome emails sent, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.JobsProcessed.WithLabelValues(mailer.WelcomeEmailJob, metrics.StatusRetried)) - retriedBefore; got != 3 {
		t.Errorf("expected 3 welcome retries, got %v", got)
	}
	if got := s.mailer.Failed(mailer.WelcomeEmailJob); got != 0 {
		t.Errorf("expected no permanent failures, got %d", got)
	}
}

func TestServerWithoutMetricsAddr(t *testing.T) {
	cfg := config.Default()
	cfg.Gateways = nil

	s, err := newServer(context.Background(), cfg, "")
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	if s.gateway != nil {
		t.Error("expected no gateway without an address")
	}
	if err := s.shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
