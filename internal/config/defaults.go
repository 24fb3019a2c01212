package config

import (
	"strings"

	"github.com/muurk/jpegmirror/internal/logging"
	"github.com/muurk/jpegmirror/internal/mirror"
	"github.com/muurk/jpegmirror/internal/server"
)

// DefaultMetricsPort is where /metrics is served when enabled
const DefaultMetricsPort = 9090

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration fields.
// Explicit values are preserved; string enums are lowercased.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyProcessingDefaults(&cfg.Processing)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyDiscoveryDefaults(&cfg.Discovery)
	// workers: zero size and zero queue already mean "CPU count" and "unbounded"
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = server.DefaultPort
	}
	if cfg.MaxRequestSize == 0 {
		cfg.MaxRequestSize = server.DefaultMaxRequestSize
	}
	if cfg.MaxHeaderSize == 0 {
		cfg.MaxHeaderSize = server.DefaultMaxHeaderSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = server.DefaultTimeout
	}
	if cfg.MimeType == "" {
		cfg.MimeType = mirror.MimeType
	}
}

func applyProcessingDefaults(cfg *ProcessingConfig) {
	if cfg.Quality == 0 {
		cfg.Quality = mirror.DefaultQuality
	}
	cfg.Direction = strings.ToLower(cfg.Direction)
	if cfg.Direction == "" {
		cfg.Direction = mirror.Horizontal
	}
	if cfg.MaxPixels == 0 {
		cfg.MaxPixels = mirror.DefaultMaxPixels
	}
}

// applyLoggingDefaults leaves an empty level alone so logging.New can
// consult JPEGMIRROR_LOG_LEVEL.
func applyLoggingDefaults(cfg *LoggingConfig) {
	cfg.Level = strings.ToLower(cfg.Level)
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Format == "" {
		cfg.Format = logging.FormatConsole
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

func applyDiscoveryDefaults(cfg *DiscoveryConfig) {
	if cfg.Instance == "" {
		cfg.Instance = "jpegmirror"
	}
}
