package core

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// logEvent writes an event if a logger is configured. Failures are ignored:
// the event log is advisory and must never fail a task operation.
func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data)
}
