package events

import "go.uber.org/zap"

// LoggingObserver logs all events for debugging purposes.
type LoggingObserver struct {
	name    string
	logger  *zap.Logger
	verbose bool
}

// NewLoggingObserver creates a new observer that logs events.
func NewLoggingObserver(logger *zap.Logger, verbose bool) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{
		name:    "LoggingObserver",
		logger:  logger,
		verbose: verbose,
	}
}

// OnEvent logs the event details.
func (o *LoggingObserver) OnEvent(event Event) error {
	if o.verbose {
		o.logger.Info("event", zap.String("type", event.Type), zap.Any("data", event.TypedData))
	} else {
		o.logger.Info("event", zap.String("type", event.Type))
	}
	return nil
}

// GetName returns the observer's name.
func (o *LoggingObserver) GetName() string {
	return o.name
}

// ShouldHandle returns true for all events.
func (o *LoggingObserver) ShouldHandle(string) bool {
	return true
}
