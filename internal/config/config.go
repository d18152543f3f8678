// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/pktt/internal/core"
	"firestige.xyz/pktt/internal/filter"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `pktt:` root key in YAML.
type GlobalConfig struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Decoder DecoderConfig `mapstructure:"decoder" yaml:"decoder"`
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Sink    SinkConfig    `mapstructure:"sink" yaml:"sink"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level" yaml:"level"`   // trace / debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // text / nested / json
	Pattern    string           `mapstructure:"pattern" yaml:"pattern"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Decoder ───

// DecoderConfig configures decode sessions.
type DecoderConfig struct {
	// StrictGSS turns malformed RPCSEC_GSS envelopes into packet errors
	// instead of diagnostics.
	StrictGSS bool `mapstructure:"strict_gss" yaml:"strict_gss"`
}

// ─── Source ───

// SourceConfig configures the capture file source.
type SourceConfig struct {
	Filter string `mapstructure:"filter" yaml:"filter"` // e.g. "udp and port 111"
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Sink ───

// SinkConfig configures where decoded packets are published besides the
// command output.
type SinkConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka"`
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers,omitempty"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	Compression  string        `mapstructure:"compression" yaml:"compression"` // none / gzip / snappy / lz4 / zstd
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pktt: ...`.
type configRoot struct {
	Pktt GlobalConfig `mapstructure:"pktt" yaml:"pktt"`
}

// Load loads configuration from file. An empty path yields the defaults,
// still subject to environment overrides.
// The YAML file uses `pktt:` as root key; env vars use the PKTT_ prefix
// (e.g. PKTT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `pktt.` key prefix maps to `PKTT_` through the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pktt

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "pktt." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pktt.log.level", "info")
	v.SetDefault("pktt.log.format", "text")
	v.SetDefault("pktt.log.pattern", DefaultLogPattern)
	v.SetDefault("pktt.log.time_format", DefaultLogTimeFormat)
	v.SetDefault("pktt.log.outputs.file.enabled", false)
	v.SetDefault("pktt.log.outputs.file.path", "pktt.log")
	v.SetDefault("pktt.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pktt.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pktt.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pktt.log.outputs.file.rotation.compress", true)

	// Decoder defaults
	v.SetDefault("pktt.decoder.strict_gss", false)

	// Source defaults
	v.SetDefault("pktt.source.filter", "")

	// Metrics defaults
	v.SetDefault("pktt.metrics.enabled", false)
	v.SetDefault("pktt.metrics.listen", ":9091")
	v.SetDefault("pktt.metrics.path", "/metrics")

	// Sink defaults
	v.SetDefault("pktt.sink.kafka.enabled", false)
	v.SetDefault("pktt.sink.kafka.topic", "pktt-packets")
	v.SetDefault("pktt.sink.kafka.batch_size", 100)
	v.SetDefault("pktt.sink.kafka.batch_timeout", "100ms")
	v.SetDefault("pktt.sink.kafka.compression", "snappy")
	v.SetDefault("pktt.sink.kafka.max_attempts", 3)
}

// Default log layout.
const (
	DefaultLogPattern    = "%time [%level] %field %msg\n"
	DefaultLogTimeFormat = "2006-01-02 15:04:05.000"
)

// ValidateAndApplyDefaults validates configuration and fills in values a
// partial file left empty.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "nested", "json":
	default:
		return fmt.Errorf("%w: log format %q (must be text/nested/json)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Pattern == "" {
		cfg.Log.Pattern = DefaultLogPattern
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = DefaultLogTimeFormat
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Source validation ──
	if err := filter.Validate(cfg.Source.Filter); err != nil {
		return fmt.Errorf("%w: source.filter: %v", core.ErrConfigInvalid, err)
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("%w: metrics.listen is required when metrics.enabled=true", core.ErrConfigInvalid)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("%w: metrics.path %q must start with /", core.ErrConfigInvalid, cfg.Metrics.Path)
		}
	}

	// ── Sink validation ──
	if k := &cfg.Sink.Kafka; k.Enabled {
		if len(k.Brokers) == 0 {
			return fmt.Errorf("%w: sink.kafka.brokers is required when sink.kafka.enabled=true", core.ErrConfigInvalid)
		}
		if k.Topic == "" {
			return fmt.Errorf("%w: sink.kafka.topic is required when sink.kafka.enabled=true", core.ErrConfigInvalid)
		}
		switch k.Compression {
		case "", "none", "gzip", "snappy", "lz4", "zstd":
		default:
			return fmt.Errorf("%w: sink.kafka.compression %q (must be none/gzip/snappy/lz4/zstd)", core.ErrConfigInvalid, k.Compression)
		}
		if k.BatchSize <= 0 {
			k.BatchSize = 100
		}
		if k.MaxAttempts <= 0 {
			k.MaxAttempts = 3
		}
	}

	return nil
}
