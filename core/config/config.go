// Package config loads herald's settings with viper from a YAML file,
// HERALD_* environment variables and built-in defaults, and notifies hooks
// when the file changes on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// SupportedConfigVersions is the range of config_version values this build reads.
const SupportedConfigVersions = "^1.0"

// CurrentConfigVersion is written by Default.
const CurrentConfigVersion = "1.0.0"

// Config holds the application's configuration settings.
type Config struct {
	ConfigVersion string                            `mapstructure:"config_version" yaml:"config_version"`
	Environment   string                            `mapstructure:"environment" yaml:"environment"`
	Log           LogConfig                         `mapstructure:"log" yaml:"log"`
	Dispatcher    DispatcherConfig                  `mapstructure:"dispatcher" yaml:"dispatcher"`
	Handlers      map[string]map[string]interface{} `mapstructure:"handlers" yaml:"handlers"` // per-handler settings, decoded by each module
	Gateways      map[string]map[string]interface{} `mapstructure:"gateways" yaml:"gateways"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// DispatcherConfig controls the job dispatcher.
type DispatcherConfig struct {
	DefaultRetries     int  `mapstructure:"default_retries" yaml:"default_retries"`
	RecoverPanics      bool `mapstructure:"recover_panics" yaml:"recover_panics"`
	StopTimeoutSeconds int  `mapstructure:"stop_timeout_seconds" yaml:"stop_timeout_seconds"`
}

// Loader reads and watches one configuration source.
type Loader struct {
	v     *viper.Viper
	mu    sync.Mutex
	hooks []func(*Config)
}

// NewLoader returns a loader searching for herald.yaml in the given
// directories, or in ".", "./configs" and "/etc/herald" when none are given.
// A non-empty file overrides the search.
func NewLoader(file string, dirs ...string) *Loader {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("herald")
		v.SetConfigType("yaml")
		if len(dirs) == 0 {
			dirs = []string{".", "./configs", "/etc/herald"}
		}
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("HERALD") // e.g. HERALD_DISPATCHER_DEFAULT_RETRIES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("config_version", CurrentConfigVersion)
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)
	v.SetDefault("dispatcher.default_retries", 10)
	v.SetDefault("dispatcher.recover_panics", true)
	v.SetDefault("dispatcher.stop_timeout_seconds", 10)

	return &Loader{v: v}
}

// Load reads the configuration. A missing file is not an error: defaults and
// environment variables apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fmt.Fprintln(os.Stderr, "Config file not found, using defaults and environment variables.")
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// File returns the path of the file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// AddChangeHook registers a function called with the new configuration each
// time the watched file changes and still validates.
func (l *Loader) AddChangeHook(hook func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// Watch starts watching the config file. Invalid edits are reported to onErr
// and otherwise ignored.
func (l *Loader) Watch(onErr func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.unmarshal()
		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		l.mu.Lock()
		hooks := slices.Clone(l.hooks)
		l.mu.Unlock()
		for _, hook := range hooks {
			hook(cfg)
		}
	})
	l.v.WatchConfig()
}

// LoadDotEnv exports variables from the given .env files (default ".env")
// into the process environment so HERALD_* overrides can live in a file.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads the configuration from the default search paths.
func LoadConfig() (*Config, error) {
	return NewLoader("").Load()
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ConfigVersion: CurrentConfigVersion,
		Environment:   "development",
		Log:           LogConfig{Level: "info", Development: true},
		Dispatcher: DispatcherConfig{
			DefaultRetries:     10,
			RecoverPanics:      true,
			StopTimeoutSeconds: 10,
		},
		Handlers: map[string]map[string]interface{}{
			"mailer": {
				"from":           "no-reply@localhost",
				"subject_prefix": "[herald]",
				"fail_first":     0,
			},
		},
		Gateways: map[string]map[string]interface{}{
			"httpmetrics": {
				"addr":         ":9090",
				"metrics_path": "/metrics",
			},
		},
	}
}

// Save writes cfg to filename as YAML.
func Save(cfg *Config, filename string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid environment: %q", c.Environment)
	}

	version, err := semver.NewVersion(c.ConfigVersion)
	if err != nil {
		return fmt.Errorf("invalid config_version %q: %w", c.ConfigVersion, err)
	}
	supported, err := semver.NewConstraint(SupportedConfigVersions)
	if err != nil {
		return fmt.Errorf("invalid supported version constraint: %w", err)
	}
	if !supported.Check(version) {
		return fmt.Errorf("config_version %s is not supported (want %s)", c.ConfigVersion, SupportedConfigVersions)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Dispatcher.DefaultRetries < 0 {
		return fmt.Errorf("dispatcher.default_retries must not be negative, got %d", c.Dispatcher.DefaultRetries)
	}
	if c.Dispatcher.StopTimeoutSeconds <= 0 {
		return fmt.Errorf("dispatcher.stop_timeout_seconds must be positive, got %d", c.Dispatcher.StopTimeoutSeconds)
	}
	return nil
}

// HandlerConfig returns the settings block for a handler module, or nil.
func (c *Config) HandlerConfig(name string) map[string]interface{} {
	if c.Handlers == nil {
		return nil
	}
	return c.Handlers[name]
}

// GatewayConfig returns the settings block for a gateway, or nil.
func (c *Config) GatewayConfig(name string) map[string]interface{} {
	if c.Gateways == nil {
		return nil
	}
	return c.Gateways[name]
}
