package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/muurk/jpegmirror/internal/logging"
	"github.com/muurk/jpegmirror/internal/mirror"
	"github.com/muurk/jpegmirror/internal/server"
	"github.com/muurk/jpegmirror/internal/workerpool"
)

// EnvPrefix prefixes every environment override, e.g. JPEGMIRROR_SERVER_PORT
const EnvPrefix = "JPEGMIRROR"

// Config is the complete jpegmirror configuration.
//
// Precedence (highest first): command-line flags, JPEGMIRROR_* environment
// variables, the YAML config file, defaults.
type Config struct {
	Server     ServerConfig      `mapstructure:"server" yaml:"server"`
	Workers    workerpool.Config `mapstructure:"workers" yaml:"workers"`
	Processing ProcessingConfig  `mapstructure:"processing" yaml:"processing"`
	Logging    LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Discovery  DiscoveryConfig   `mapstructure:"discovery" yaml:"discovery"`
}

// ServerConfig configures the listener and per-connection limits
type ServerConfig struct {
	Host           string        `mapstructure:"host" validate:"omitempty,ipv4"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	MaxRequestSize ByteSize      `mapstructure:"max_request_size" validate:"gt=0"`
	MaxHeaderSize  ByteSize      `mapstructure:"max_header_size" validate:"gt=0"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MimeType       string        `mapstructure:"mime_type"`
}

// MarshalYAML writes the timeout as a duration string instead of nanoseconds.
func (c ServerConfig) MarshalYAML() (any, error) {
	return struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		MaxRequestSize ByteSize `yaml:"max_request_size"`
		MaxHeaderSize  ByteSize `yaml:"max_header_size"`
		Timeout        string   `yaml:"timeout"`
		MimeType       string   `yaml:"mime_type"`
	}{
		Host:           c.Host,
		Port:           c.Port,
		MaxRequestSize: c.MaxRequestSize,
		MaxHeaderSize:  c.MaxHeaderSize,
		Timeout:        c.Timeout.String(),
		MimeType:       c.MimeType,
	}, nil
}

// ServerOptions converts the section into the server package's Config.
func (c ServerConfig) ServerOptions() server.Config {
	return server.Config{
		Host:           c.Host,
		Port:           c.Port,
		MaxRequestSize: int64(c.MaxRequestSize),
		MaxHeaderSize:  int64(c.MaxHeaderSize),
		Timeout:        c.Timeout,
		MimeType:       c.MimeType,
	}
}

// ProcessingConfig configures the JPEG mirror handler
type ProcessingConfig struct {
	Quality   int    `mapstructure:"quality" yaml:"quality" validate:"min=1,max=100"`
	Direction string `mapstructure:"direction" yaml:"direction" validate:"oneof=horizontal vertical"`
	MaxPixels int    `mapstructure:"max_pixels" yaml:"max_pixels" validate:"min=0"`
}

// MirrorOptions converts the section into mirror.Options.
func (c ProcessingConfig) MirrorOptions() mirror.Options {
	return mirror.Options{
		Quality:   c.Quality,
		Direction: c.Direction,
		MaxPixels: c.MaxPixels,
	}
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	// Level is debug, info, warn or error. Empty falls back to JPEGMIRROR_LOG_LEVEL, then info.
	Level  string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
	Output string `mapstructure:"output" yaml:"output,omitempty"`
}

// LoggerOptions converts the section into logging.Config.
func (c LoggingConfig) LoggerOptions() logging.Config {
	return logging.Config{
		Level:  c.Level,
		Format: c.Format,
		Output: c.Output,
	}
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// DiscoveryConfig configures mDNS advertisement
type DiscoveryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Instance string `mapstructure:"instance" yaml:"instance"`
}

// ByteSize is a size in bytes that also decodes from strings like "32MiB" or "512 KB".
type ByteSize int64

// ParseByteSize parses a human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("byte size %q is too large", s)
	}
	return ByteSize(n), nil
}

// String formats the size with IEC units
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}

// MarshalYAML writes the size in human readable form
func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// byteSizeHookFunc lets mapstructure decode strings into ByteSize.
// Integers are handled by mapstructure's own numeric conversion.
func byteSizeHookFunc() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(ByteSize(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target || from.Kind() != reflect.String {
			return data, nil
		}
		return ParseByteSize(data.(string))
	}
}

// Load reads configuration from the given file (or the default location when
// path is empty), applies JPEGMIRROR_* environment overrides, fills defaults
// and validates the result.
//
// A missing file at the default location is not an error; an explicitly
// named file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables, the config file and key defaults.
func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	registerKeys(v)

	if path != "" {
		v.SetConfigFile(path)
		return
	}

	if dir, err := GetConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// registerKeys declares every key with its default value.
func registerKeys(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_request_size", int64(d.Server.MaxRequestSize))
	v.SetDefault("server.max_header_size", int64(d.Server.MaxHeaderSize))
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.mime_type", d.Server.MimeType)

	v.SetDefault("workers.size", d.Workers.Size)
	v.SetDefault("workers.queue_size", d.Workers.QueueSize)

	v.SetDefault("processing.quality", d.Processing.Quality)
	v.SetDefault("processing.direction", d.Processing.Direction)
	v.SetDefault("processing.max_pixels", d.Processing.MaxPixels)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)

	v.SetDefault("discovery.enabled", d.Discovery.Enabled)
	v.SetDefault("discovery.instance", d.Discovery.Instance)
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}
