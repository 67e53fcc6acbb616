package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventsFile is the JSONL event log inside the data directory.
const EventsFile = "events.jsonl"

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event represents a single observable event in the system.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "task.created", "task.status_changed"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// TaskID returns the task_id attribute, or "" when the event has none.
func (e Event) TaskID() string {
	id, _ := e.Data["task_id"].(string)
	return id
}

// EventFilter specifies criteria for reading events. TypePrefix matches a
// family such as "task." or "backlog.".
type EventFilter struct {
	Since      *time.Time
	Until      *time.Time
	Type       string
	TypePrefix string
	Level      string
	TaskID     string
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

// jsonlEventLog implements EventLog using append-only JSONL files.
type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog creates a new EventLog backed by a JSONL file at the given path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{
		path: path,
		file: f,
	}, nil
}

// Write appends a JSON-encoded event followed by a newline to the log file.
func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the log file line by line and returns the events matching the
// filter in time order. Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // skip malformed lines
		}

		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	// Separate processes append independently; order by timestamp.
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events, nil
}

// Close closes the underlying log file.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

// matchesEventFilter checks whether an event satisfies all filter criteria.
func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.TypePrefix != "" && !strings.HasPrefix(event.Type, filter.TypePrefix) {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.TaskID != "" && event.TaskID() != filter.TaskID {
		return false
	}
	return true
}

// Recorder turns (type, data) pairs from the core services into Events.
// It satisfies core.EventLogger.
type Recorder struct {
	log EventLog
	now func() time.Time
}

// NewRecorder creates a Recorder that writes to log.
func NewRecorder(log EventLog) *Recorder {
	return &Recorder{log: log, now: func() time.Time { return time.Now().UTC() }}
}

// LogEvent stamps, levels and describes the event, then writes it.
func (r *Recorder) LogEvent(eventType string, data map[string]any) error {
	return r.log.Write(Event{
		Time:    r.now(),
		Level:   levelFor(eventType, data),
		Type:    eventType,
		Message: messageFor(eventType, data),
		Data:    data,
	})
}

func levelFor(eventType string, data map[string]any) string {
	switch eventType {
	case "task.retried":
		return LevelWarn
	case "task.exited":
		if code, ok := data["exit_code"].(int); ok && code != 0 {
			return LevelWarn
		}
	}
	return LevelInfo
}

func messageFor(eventType string, data map[string]any) string {
	taskID, _ := data["task_id"].(string)
	switch eventType {
	case "task.created":
		return "created task " + taskID
	case "task.status_changed":
		return fmt.Sprintf("task %s moved from %v to %v", taskID, data["old_status"], data["new_status"])
	case "task.deleted":
		return "deleted task " + taskID
	case "task.consumed":
		return fmt.Sprintf("task %s consumed by pid %v", taskID, data["pid"])
	case "task.exited":
		return fmt.Sprintf("task %s process exited with code %v", taskID, data["exit_code"])
	case "task.retried":
		return "task " + taskID + " returned to open for retry"
	case "dependency.added":
		return fmt.Sprintf("task %s now blocked by %v", taskID, data["blocker_id"])
	case "dependency.removed":
		return fmt.Sprintf("task %s no longer blocked by %v", taskID, data["blocker_id"])
	case "epic.created", "epic.deleted":
		return fmt.Sprintf("%s %v", strings.TrimPrefix(eventType, "epic."), data["epic_id"])
	case "backlog.promoted":
		return fmt.Sprintf("promoted backlog item %v to task %s", data["backlog_id"], taskID)
	case "backlog.deferred":
		return fmt.Sprintf("deferred task %s to backlog item %v", taskID, data["backlog_id"])
	case "run.recorded":
		return fmt.Sprintf("recorded run %v for task %s", data["run_id"], taskID)
	}
	return eventType
}
