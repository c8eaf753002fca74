// Package logging provides structured logging for Halcyon Core.
//
// It wraps Go's standard log/slog package so every component logs with the
// same default fields (service, version) and respects the configured level
// and format:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log secrets: broker passwords and InfluxDB tokens stay out of log
// fields.
package logging
