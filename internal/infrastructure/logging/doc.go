// Package logging provides structured logging for Lockerweb Core.
//
// It wraps the standard library's log/slog with configuration-driven
// format/level selection and service-wide default fields.
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("locker registered", "device_id", id)
package logging
