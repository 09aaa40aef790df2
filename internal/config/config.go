package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all station configuration
type Config struct {
	// Backend
	BackendURL     string        `mapstructure:"backend-url"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// Workflow timings
	AutoPollInterval  time.Duration `mapstructure:"auto-poll-interval"`
	SettleDelay       time.Duration `mapstructure:"settle-delay"`
	AutoPrintDelay    time.Duration `mapstructure:"auto-print-delay"`
	DisconnectReset   time.Duration `mapstructure:"disconnect-reset"`
	PrintFailureReset time.Duration `mapstructure:"print-failure-reset"`
	DoneResetAuto     time.Duration `mapstructure:"done-reset-auto"`
	DoneResetManual   time.Duration `mapstructure:"done-reset-manual"`
	ScanPollInterval  time.Duration `mapstructure:"scan-poll-interval"`
	HistoryInterval   time.Duration `mapstructure:"history-interval"`
	WarningInterval   time.Duration `mapstructure:"warning-interval"`

	// Models
	Model      string `mapstructure:"model"`
	ModelsFile string `mapstructure:"models-file"`

	// Local status API; empty disables it
	HTTPAddr string `mapstructure:"http-addr"`

	// Logging
	LogFile  string `mapstructure:"log-file"`
	LogLevel string `mapstructure:"log-level"`
}

// SetDefaults registers every key so env and file values unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend-url", "http://127.0.0.1:5000")
	v.SetDefault("request-timeout", 5*time.Second)
	v.SetDefault("auto-poll-interval", time.Second)
	v.SetDefault("settle-delay", 500*time.Millisecond)
	v.SetDefault("auto-print-delay", time.Second)
	v.SetDefault("disconnect-reset", 3*time.Second)
	v.SetDefault("print-failure-reset", 3*time.Second)
	v.SetDefault("done-reset-auto", 3*time.Second)
	v.SetDefault("done-reset-manual", 5*time.Second)
	v.SetDefault("scan-poll-interval", 2*time.Second)
	v.SetDefault("history-interval", 10*time.Second)
	v.SetDefault("warning-interval", 2*time.Second)
	v.SetDefault("model", "")
	v.SetDefault("models-file", "")
	v.SetDefault("http-addr", "127.0.0.1:8097")
	v.SetDefault("log-file", "logs/rcstation.log")
	v.SetDefault("log-level", "info")
}

// Load reads defaults, the optional config file, RCSTATION_* env and any
// flags already bound to v.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("RCSTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("rcstation")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rcstation")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	c.Model = strings.TrimSpace(c.Model)
	c.ModelsFile = strings.TrimSpace(c.ModelsFile)
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if c.RequestTimeout < time.Second {
		c.RequestTimeout = time.Second
	}
	if c.AutoPollInterval < 200*time.Millisecond {
		c.AutoPollInterval = 200 * time.Millisecond
	}
	if c.ScanPollInterval < 200*time.Millisecond {
		c.ScanPollInterval = 200 * time.Millisecond
	}
	if c.HistoryInterval < time.Second {
		c.HistoryInterval = time.Second
	}
	for _, d := range []*time.Duration{
		&c.SettleDelay, &c.AutoPrintDelay, &c.DisconnectReset,
		&c.PrintFailureReset, &c.DoneResetAuto, &c.DoneResetManual, &c.WarningInterval,
	} {
		if *d < 0 {
			*d = 0
		}
	}
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend-url cannot be empty")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend-url %q must be an http(s) URL", c.BackendURL)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps the log-level option to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log-level %q", s)
	}
}
