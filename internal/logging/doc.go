// Package logging builds the structured logger used throughout jpegmirror.
//
// The package wraps zap. Unlike a process-global logger, New returns a
// *zap.Logger that callers construct once at startup and pass down to every
// component (server, worker pool, metrics, discovery). Tests use Nop.
//
// # Log Levels
//
//   - Debug: connection events, state transitions, raw request dumps
//   - Info: startup, shutdown, responses sent, processing latency
//   - Warn: non-fatal issues (listener accept errors, drain waits)
//   - Error: internal processing failures, recovered panics
//
// # Configuration
//
//	logger, err := logging.New(logging.Config{Level: "debug"})
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
// When Level is empty the JPEGMIRROR_LOG_LEVEL environment variable is
// consulted, falling back to info.
//
// # Output Format
//
// Console format (default) is human-readable with ISO8601 timestamps and
// colored level names. JSON format is intended for log aggregation.
//
// # Thread Safety
//
// zap loggers are safe for concurrent use. Lines written from connection
// goroutines and worker goroutines never interleave.
package logging
