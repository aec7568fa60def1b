// Package logging provides structured logging for elan2mqtt.
//
// This package wraps Go's standard log/slog package so every component logs
// the same way.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for interactive use
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The --log-level flag overrides logging.level.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("hub authenticated", "url", cfg.Hub.URL)
//
// # Security
//
// Never log the hub password, its hash, or broker credentials.
package logging
