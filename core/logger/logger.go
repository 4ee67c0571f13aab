// Package logger holds the process-wide zap logger and context-aware helpers
// that tag every entry with the component that emitted it.
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the application-wide logger.
var Logger *zap.Logger

// level backs Logger so the verbosity can change at runtime (config reload).
var level = zap.NewAtomicLevelAt(zapcore.DebugLevel)

// componentNameKey is a context key for storing the component name.
type componentNameKeyType string

const componentNameKey componentNameKeyType = "componentName"

func init() {
	l, err := build(true)
	if err != nil {
		panic(err)
	}
	Logger = l
	zap.ReplaceGlobals(Logger)
}

func build(development bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.Level = level
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config.Build()
}

// Configure rebuilds Logger with the given level and encoding and installs it
// as the zap global.
func Configure(lvl string, development bool) error {
	if err := SetLevel(lvl); err != nil {
		return err
	}
	l, err := build(development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	Logger = l
	zap.ReplaceGlobals(Logger)
	return nil
}

// SetLevel changes the minimum enabled level of Logger.
func SetLevel(lvl string) error {
	parsed, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", lvl, err)
	}
	level.SetLevel(parsed)
	return nil
}

// Level returns the currently enabled level.
func Level() zapcore.Level {
	return level.Level()
}

// getComponentNameFromContext extracts the component name from the context.
func getComponentNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(componentNameKey).(string); ok {
		return name
	}
	return "unknown"
}

// WithComponentName creates a new context with the component name set.
func WithComponentName(ctx context.Context, componentName string) context.Context {
	return context.WithValue(ctx, componentNameKey, componentName)
}

// ComponentName returns the component stored in ctx, or "unknown".
func ComponentName(ctx context.Context) string {
	return getComponentNameFromContext(ctx)
}

func withComponent(ctx context.Context, fields []zap.Field) []zap.Field {
	return append(fields, zap.String("component", getComponentNameFromContext(ctx)))
}

// Info logs at info level.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Info(msg, withComponent(ctx, fields)...)
}

// Warn logs at warn level.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Warn(msg, withComponent(ctx, fields)...)
}

// Error logs at error level.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Error(msg, withComponent(ctx, fields)...)
}

// Fatal logs at fatal level and exits the process.
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Fatal(msg, withComponent(ctx, fields)...)
}

// Debug logs at debug level.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Logger.Debug(msg, withComponent(ctx, fields)...)
}

// SetLogger allows external packages to set the internal zap.Logger instance.
// This is primarily for testing purposes or advanced logger re-configuration.
func SetLogger(l *zap.Logger) {
	Logger = l
}
