// Package logging wraps log/slog with the conventions every other
// package in zigbee-core follows: a shared Logger carrying default
// service and version fields, child loggers per component, and
// level, format, and destination driven by config.LoggingConfig.
//
// Production runs emit JSON to stdout. During development the text
// handler is easier on the eyes:
//
//	logging:
//	  level: "debug"
//	  format: "text"
//	  output: "stderr"
//
// Subsystems take a child logger rather than the root one:
//
//	log := root.Component("mqtt").With("coordinator", coord.Name)
//	log.Info("connected", "broker", addr)
//
// Keep secrets out of log fields. Broker passwords and API tokens
// never appear in any log entry at any level.
package logging
