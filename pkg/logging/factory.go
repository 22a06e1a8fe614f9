package logging

import (
	"github.com/charmbracelet/log"
)

// Factory hands out component-scoped loggers with consistent field naming.
type Factory struct {
	baseLogger *log.Logger
}

// NewFactory creates a new logger factory.
func NewFactory(baseLogger *log.Logger) *Factory {
	return &Factory{baseLogger: baseLogger}
}

// ForComponent creates a logger for a specific component.
func (lf *Factory) ForComponent(id string) *log.Logger {
	return lf.baseLogger.With("component", id)
}

// Pipeline stage loggers.
func (lf *Factory) ForFetcher(id string) *log.Logger {
	return lf.tagged("fetcher", id)
}

func (lf *Factory) ForScorer(id string) *log.Logger {
	return lf.tagged("scorer", id)
}

func (lf *Factory) ForCache(id string) *log.Logger {
	return lf.tagged("cache", id)
}

func (lf *Factory) ForViews(id string) *log.Logger {
	return lf.tagged("views", id)
}

func (lf *Factory) ForPipeline(id string) *log.Logger {
	return lf.tagged("pipeline", id)
}

// Infrastructure loggers.
func (lf *Factory) ForProvider(id string) *log.Logger {
	return lf.tagged("provider", id)
}

func (lf *Factory) ForServer(id string) *log.Logger {
	return lf.tagged("server", id)
}

func (lf *Factory) ForNATS(id string) *log.Logger {
	return lf.tagged("nats", id)
}

func (lf *Factory) ForAuth(id string) *log.Logger {
	return lf.tagged("auth", id)
}

func (lf *Factory) ForAI(id string) *log.Logger {
	return lf.tagged("ai", id)
}

func (lf *Factory) tagged(subsystem, id string) *log.Logger {
	return lf.baseLogger.With("component", id, "subsystem", subsystem)
}

// WithSessionID adds session correlation to a logger.
func (lf *Factory) WithSessionID(logger *log.Logger, sessionID string) *log.Logger {
	return logger.With("session_id", sessionID)
}

// WithOperation adds operation context to a logger.
func (lf *Factory) WithOperation(logger *log.Logger, operation string) *log.Logger {
	return logger.With("operation", operation)
}

// WithError adds error context to a logger.
func (lf *Factory) WithError(logger *log.Logger, err error) *log.Logger {
	if err != nil {
		return logger.With("error", err.Error())
	}
	return logger
}
