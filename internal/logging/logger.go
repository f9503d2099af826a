package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. Development gets human-readable text,
// every other environment gets JSON on stdout.
func NewLogger(level string, environment string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(ParseLogrusLevel(level))

	if strings.EqualFold(environment, "development") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

// ParseLogrusLevel converts string level to logrus.Level
func ParseLogrusLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithComponent tags entries with the emitting component.
func WithComponent(logger logrus.FieldLogger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// LogStartup logs application startup information
func LogStartup(logger logrus.FieldLogger, service string, version string, port int) {
	logger.WithFields(logrus.Fields{
		"event":   "startup",
		"service": service,
		"version": version,
		"port":    port,
	}).Info("Service starting")
}

// LogShutdown logs application shutdown information
func LogShutdown(logger logrus.FieldLogger, service string, reason string) {
	logger.WithFields(logrus.Fields{
		"event":   "shutdown",
		"service": service,
		"reason":  reason,
	}).Info("Service shutting down")
}

// LogForecastCycle records the outcome of one forecast cycle.
func LogForecastCycle(logger logrus.FieldLogger, target string, attempt int, durationMs int64, err error) {
	fields := logrus.Fields{
		"event":       "forecast_cycle",
		"target":      target,
		"attempt":     attempt,
		"duration_ms": durationMs,
	}
	if err != nil {
		logger.WithFields(fields).WithError(err).Warn("Forecast cycle failed")
		return
	}
	logger.WithFields(fields).Info("Forecast cycle completed")
}
