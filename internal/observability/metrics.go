package observability

import (
	"fmt"
	"time"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	TasksCreated    int            `json:"tasks_created"`
	TasksClosed     int            `json:"tasks_closed"`
	TasksReopened   int            `json:"tasks_reopened"`
	TasksRetried    int            `json:"tasks_retried"`
	TasksDeleted    int            `json:"tasks_deleted"`
	TasksByStatus   map[string]int `json:"tasks_by_status"`
	TasksByType     map[string]int `json:"tasks_by_type"`
	BacklogPromoted int            `json:"backlog_promoted"`
	BacklogDeferred int            `json:"backlog_deferred"`
	RunsRecorded    int            `json:"runs_recorded"`
	FailedExits     int            `json:"failed_exits"`
	TotalCostUSD    float64        `json:"total_cost_usd"`
	EventCount      int            `json:"event_count"`
	OldestEvent     *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent     *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into
// metrics. TasksByStatus counts transitions into each status.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		TasksByStatus: make(map[string]int),
		TasksByType:   make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
			if taskType, ok := event.Data["type"].(string); ok {
				m.TasksByType[taskType]++
			}
		case "task.status_changed":
			newStatus, _ := event.Data["new_status"].(string)
			oldStatus, _ := event.Data["old_status"].(string)
			if newStatus != "" {
				m.TasksByStatus[newStatus]++
			}
			if newStatus == "closed" {
				m.TasksClosed++
			}
			if oldStatus == "closed" && newStatus == "open" {
				m.TasksReopened++
			}
		case "task.retried":
			m.TasksRetried++
		case "task.deleted":
			m.TasksDeleted++
		case "task.exited":
			if code, ok := numberAttr(event.Data, "exit_code"); ok && code != 0 {
				m.FailedExits++
			}
		case "backlog.promoted":
			m.BacklogPromoted++
		case "backlog.deferred":
			m.BacklogDeferred++
		case "run.recorded":
			m.RunsRecorded++
			if cost, ok := numberAttr(event.Data, "cost_usd"); ok {
				m.TotalCostUSD += cost
			}
		}
	}

	return m, nil
}

// numberAttr reads a numeric attribute. Values decoded from JSON arrive as
// float64; values logged in-process keep their Go type.
func numberAttr(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
