// Package logging is the rig core's structured logger, a thin layer over
// log/slog that stamps every record with service and version.
//
// Configured under logging: in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// Operators read this log for diagnostics. Device history belongs in the
// CSV ledgers, not here.
package logging
