package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHelpersTagComponent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	ctx := WithComponentName(context.Background(), "dispatcher")
	Info(ctx, "started", zap.Int("handlers", 2))
	Warn(context.Background(), "no component")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["component"]; got != "dispatcher" {
		t.Errorf("Expected component 'dispatcher', got '%v'", got)
	}
	if got := entries[0].ContextMap()["handlers"]; got != int64(2) {
		t.Errorf("Expected handlers field 2, got %v", got)
	}
	if got := entries[1].ContextMap()["component"]; got != "unknown" {
		t.Errorf("Expected component 'unknown', got '%v'", got)
	}
}

func TestSetLevel(t *testing.T) {
	prev := Level()
	defer level.SetLevel(prev)

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if Level() != zapcore.WarnLevel {
		t.Errorf("Expected warn level, got %s", Level())
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("Expected SetLevel to reject an unknown level")
	}
}

func TestComponentName(t *testing.T) {
	if got := ComponentName(context.Background()); got != "unknown" {
		t.Errorf("Expected 'unknown', got '%s'", got)
	}
	ctx := WithComponentName(context.Background(), "mailer")
	if got := ComponentName(ctx); got != "mailer" {
		t.Errorf("Expected 'mailer', got '%s'", got)
	}
}
