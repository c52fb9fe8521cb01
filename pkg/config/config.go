package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	defaults "github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srg/rpmlink/internal/protocol"
	"github.com/srg/rpmlink/internal/registry"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level" default:"panic"`

	RescanInterval    time.Duration `yaml:"rescan_interval" json:"rescan_interval" default:"2s"`
	PreconditionRetry time.Duration `yaml:"precondition_retry" json:"precondition_retry" default:"2s"`
	SettleDelay       time.Duration `yaml:"settle_delay" json:"settle_delay" default:"700ms"`
	SerialSettleDelay time.Duration `yaml:"serial_settle_delay" json:"serial_settle_delay" default:"2s"`
	FinalizeLinger    time.Duration `yaml:"finalize_linger" json:"finalize_linger" default:"3s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"10s"`

	JournalPath string `yaml:"journal_path" json:"journal_path"`

	ReadSerialFirst      bool `yaml:"read_serial_first" json:"read_serial_first"`
	ReadGlucoseTimeFirst bool `yaml:"read_glucose_time_first" json:"read_glucose_time_first"`

	// Aliases maps a category name ("PULSE_OXIMETER", "pulse-oximeter") to extra
	// advertised-name substrings recognized as that category.
	Aliases map[string][]string `yaml:"aliases" json:"aliases"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for name, d := range map[string]time.Duration{
		"rescan_interval":    c.RescanInterval,
		"precondition_retry": c.PreconditionRetry,
		"finalize_linger":    c.FinalizeLinger,
		"connect_timeout":    c.ConnectTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.SettleDelay < protocol.MinSettleDelay {
		errs = append(errs, fmt.Errorf("settle_delay must be at least %s, got %s", protocol.MinSettleDelay, c.SettleDelay))
	}
	if c.SerialSettleDelay < protocol.MinSettleDelay {
		errs = append(errs, fmt.Errorf("serial_settle_delay must be at least %s, got %s", protocol.MinSettleDelay, c.SerialSettleDelay))
	}
	for name := range c.Aliases {
		if _, err := protocol.ParseCategory(name); err != nil {
			errs = append(errs, fmt.Errorf("aliases: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, Panic when unparsable.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.PanicLevel
	}
	return lvl
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// Decoder returns the response decoder with the configured settle delays.
func (c *Config) Decoder() protocol.Decoder {
	return protocol.Decoder{SettleDelay: c.SettleDelay, SerialSettleDelay: c.SerialSettleDelay}
}

// RegistryOptions translates the device-table settings. Call Validate first;
// unknown alias categories are skipped.
func (c *Config) RegistryOptions(logger *logrus.Logger) registry.Options {
	opts := registry.Options{
		ReadSerialFirst:      c.ReadSerialFirst,
		ReadGlucoseTimeFirst: c.ReadGlucoseTimeFirst,
		Logger:               logger,
	}
	if len(c.Aliases) > 0 {
		opts.Aliases = make(map[protocol.Category][]string, len(c.Aliases))
		for name, patterns := range c.Aliases {
			cat, err := protocol.ParseCategory(name)
			if err != nil {
				continue
			}
			opts.Aliases[cat] = append(opts.Aliases[cat], patterns...)
		}
	}
	return opts
}
