// Package logging provides structured logging configuration for RestSpy.
//
// It wraps log/slog so every component logs the same way. Components
// accept a *slog.Logger in their constructor or via an option and
// default to logging.Nop() when none is given:
//
//	logger := logging.New(logging.Config{
//	    Level:  slog.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("server started", "port", 4567)
//
// Text output is meant for terminals; JSON output for aggregation.
package logging
