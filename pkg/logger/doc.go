// Package logger provides structured logging for the scraper dispatch core.
//
// It wraps zerolog behind a small Logger interface so components can log
// without depending on a concrete backend, and so tests can substitute the
// capturing TestLogger.
//
// Usage:
//
//	logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger()
//	log.InfoWithFields("proxy pool ready", map[string]interface{}{
//		"working": 12,
//	})
package logger
