// Package logging builds the slog-based logger shared by every Rail Logic
// component.
//
// Configured by the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Every entry carries service and version. Components derive a child
// with Component, which adds component=<name>:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("dispatcher").Warn("route not released", "route_id", 12, "error", err)
//
// Attributes whose key contains password, secret, token, ticket or
// authorization are written as [REDACTED]. Log who acted, never how they
// authenticated.
package logging
