// Package logging provides structured logging using uber/zap.
//
// Two encodings are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// When Config.File is set, a second JSON stream is teed into a file rotated
// by lumberjack, so console verbosity and on-disk retention are independent.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "3000"))
//	logger.Error("Upstream unreachable", zap.Error(err))
package logging
