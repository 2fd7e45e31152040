// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON to stderr for machine parsing
//   - Development: colored console output for humans
//
// Logs go to stderr so that `harvest run -o -` can stream the result on stdout.
//
// Cookie values, passwords, the signing secret and token values never reach
// a log line. Use Secret to log the presence and length of such a value and
// Prefix for a checkcode.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("login submitted", logging.Secret("password", pw))
//	logger.Error("privileged fetch failed", zap.Error(err))
package logging
