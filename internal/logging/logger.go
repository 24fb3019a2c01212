package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar is the environment variable consulted when no level is configured.
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "JPEGMIRROR_LOG_LEVEL"

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects level, encoding and destination of the logger.
type Config struct {
	Level  string // debug, info, warn, error (empty = $JPEGMIRROR_LOG_LEVEL, then info)
	Format string // console or json
	Output string // stdout, stderr or a file path
}

// New builds a logger for the given configuration.
// The returned logger is safe for concurrent use; every entry carries its own timestamp.
func New(cfg Config) (*zap.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encoding := cfg.Format
	if encoding == "" {
		encoding = FormatConsole
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}

	var encoderConfig zapcore.EncoderConfig
	if encoding == FormatJSON {
		encoderConfig = zap.NewProductionEncoderConfig()
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// LogConnection logs a connection lifecycle event
func LogConnection(l *zap.Logger, remoteAddr string, event string) {
	l.Debug("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogHTTPRequest logs a request once its head has been parsed
func LogHTTPRequest(l *zap.Logger, remoteAddr string, method string, path string, contentLength int64) {
	l.Debug("HTTP request received",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int64("content_length", contentLength),
	)
}

// LogHTTPResponse logs a response after it has been written
func LogHTTPResponse(l *zap.Logger, remoteAddr string, statusCode int, bodySize int) {
	l.Info("HTTP response sent",
		zap.String("remote_addr", remoteAddr),
		zap.Int("status_code", statusCode),
		zap.Int("body_size", bodySize),
	)
}

// LogRawBytes logs raw bytes (useful for debugging malformed requests)
func LogRawBytes(l *zap.Logger, label string, data []byte) {
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// Limit to first 256 bytes for logging
	if len(data) > 256 {
		return hex.EncodeToString(data[:256]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > 256 {
		data = data[:256]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
