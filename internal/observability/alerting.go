package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TaskID      string        `json:"task_id,omitempty"`
	// Value is the measurement that tripped the threshold: days idle or in
	// review, retry count, or ready queue size.
	Value       int       `json:"value,omitempty"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Alert conditions.
const (
	ConditionTaskStale      = "task_stale"
	ConditionReviewTooLong  = "review_too_long"
	ConditionRetryLoop      = "retry_loop"
	ConditionReadyQueueSize = "ready_queue_too_large"
)

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	StaleDays  int `json:"stale_days"`
	ReviewDays int `json:"review_days"`
	MaxRetries int `json:"max_retries"`
	MaxReady   int `json:"max_ready"`
}

// DefaultAlertThresholds returns the default alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		StaleDays:  3,
		ReviewDays: 5,
		MaxRetries: 3,
		MaxReady:   25,
	}
}

// ReadyCounter reports the current number of ready tasks. The ready queue is
// derived from live task state, which the event log cannot reconstruct.
type ReadyCounter interface {
	ReadyCount() (int, error)
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	ready      ReadyCounter
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine. ready may be nil, which disables
// the ready-queue check.
func NewAlertEngine(eventLog EventLog, ready ReadyCounter, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		ready:      ready,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks every alert condition and returns the triggered alerts
// ordered by ID.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()

	events, err := ae.eventLog.Read(EventFilter{TypePrefix: "task."})
	if err != nil {
		return nil, fmt.Errorf("reading events for alerts: %w", err)
	}
	states := replayTaskStates(events)

	var alerts []Alert
	alerts = append(alerts, ae.checkStaleTasks(states, now)...)
	alerts = append(alerts, ae.checkLongReviews(states, now)...)
	alerts = append(alerts, ae.checkRetryLoops(states, now)...)

	readyAlerts, err := ae.checkReadyQueue(now)
	if err != nil {
		return nil, fmt.Errorf("checking ready queue: %w", err)
	}
	alerts = append(alerts, readyAlerts...)

	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts, nil
}

// taskState is a task's status as reconstructed from the event log.
type taskState struct {
	status       string
	changedAt    time.Time
	lastActivity time.Time
	retries      int
}

// replayTaskStates folds task events into the last known state of each task.
// Deleted tasks are dropped.
func replayTaskStates(events []Event) map[string]*taskState {
	states := make(map[string]*taskState)
	for _, event := range events {
		taskID := event.TaskID()
		if taskID == "" {
			continue
		}
		if event.Type == "task.deleted" {
			delete(states, taskID)
			continue
		}
		st, ok := states[taskID]
		if !ok {
			st = &taskState{status: "open", changedAt: event.Time}
			states[taskID] = st
		}
		if event.Time.After(st.lastActivity) {
			st.lastActivity = event.Time
		}
		switch event.Type {
		case "task.status_changed":
			if newStatus, ok := event.Data["new_status"].(string); ok && newStatus != "" {
				st.status = newStatus
				st.changedAt = event.Time
			}
		case "task.retried":
			st.retries++
		}
	}
	return states
}

// checkStaleTasks looks for in-progress tasks with no recent activity.
func (ae *alertEngine) checkStaleTasks(states map[string]*taskState, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour
	var alerts []Alert
	for taskID, st := range states {
		if st.status == "in_progress" && now.Sub(st.lastActivity) > threshold {
			alerts = append(alerts, Alert{
				ID:          "stale-" + taskID,
				Condition:   ConditionTaskStale,
				Value:       wholeDays(now.Sub(st.lastActivity)),
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s has had no activity for more than %d days", taskID, ae.thresholds.StaleDays),
				TaskID:      taskID,
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkLongReviews looks for tasks in review status longer than the threshold.
func (ae *alertEngine) checkLongReviews(states map[string]*taskState, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.ReviewDays) * 24 * time.Hour
	var alerts []Alert
	for taskID, st := range states {
		if st.status == "review" && now.Sub(st.changedAt) > threshold {
			alerts = append(alerts, Alert{
				ID:          "review-" + taskID,
				Condition:   ConditionReviewTooLong,
				Value:       wholeDays(now.Sub(st.changedAt)),
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s has been in review for more than %d days", taskID, ae.thresholds.ReviewDays),
				TaskID:      taskID,
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkRetryLoops flags unfinished tasks retried more often than allowed.
func (ae *alertEngine) checkRetryLoops(states map[string]*taskState, now time.Time) []Alert {
	var alerts []Alert
	for taskID, st := range states {
		if st.status != "closed" && st.retries > ae.thresholds.MaxRetries {
			alerts = append(alerts, Alert{
				ID:          "retries-" + taskID,
				Condition:   ConditionRetryLoop,
				Value:       st.retries,
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("task %s has been retried %d times, exceeding the maximum of %d", taskID, st.retries, ae.thresholds.MaxRetries),
				TaskID:      taskID,
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkReadyQueue alerts when more tasks are ready than agents can absorb.
func (ae *alertEngine) checkReadyQueue(now time.Time) ([]Alert, error) {
	if ae.ready == nil {
		return nil, nil
	}
	count, err := ae.ready.ReadyCount()
	if err != nil {
		return nil, err
	}
	if count <= ae.thresholds.MaxReady {
		return nil, nil
	}
	return []Alert{{
		ID:          "ready-queue",
		Condition:   ConditionReadyQueueSize,
		Value:       count,
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("ready queue has %d tasks, exceeding the maximum of %d", count, ae.thresholds.MaxReady),
		TriggeredAt: now,
	}}, nil
}

func wholeDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
