// Package logging provides the small Logger interface used across factoryops
// and its slog-backed implementation.
//
// Components log with a dotted event name and key/value pairs:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	logger.WithComponent("pipeline").WithRun(runID).Info("pipeline.step.started", "agent", name)
//
// NoOpLogger is the default everywhere a logger is optional.
package logging
