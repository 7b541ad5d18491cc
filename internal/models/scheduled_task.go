package models

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

// ScheduledTaskStatus represents the status of a scheduled task
type ScheduledTaskStatus string

const (
	ScheduledTaskStatusActive   ScheduledTaskStatus = "active"
	ScheduledTaskStatusDone     ScheduledTaskStatus = "done"
	ScheduledTaskStatusFailure  ScheduledTaskStatus = "failure"
	ScheduledTaskStatusDisabled ScheduledTaskStatus = "disabled"
)

// ScheduledTaskType represents the type of scheduled task
type ScheduledTaskType string

const (
	ScheduledTaskTypeOneTime   ScheduledTaskType = "onetime"
	ScheduledTaskTypeRecurring ScheduledTaskType = "recurring"
)

// ScheduledTask is a unit of background work picked up by the worker once
// Due has passed.
type ScheduledTask struct {
	ID                string              `firestore:"-"`
	TaskName          string              `firestore:"taskName"`
	Arguments         map[string]any      `firestore:"arguments"`
	LastRun           *time.Time          `firestore:"lastRun"`
	Due               time.Time           `firestore:"due"`
	RecurringInterval string              `firestore:"recurringInterval"`
	Status            ScheduledTaskStatus `firestore:"status"`
	TaskType          ScheduledTaskType   `firestore:"taskType"`
	MaxAttempt        int                 `firestore:"maxAttempt"`
	CreatedAt         time.Time           `firestore:"createdAt"`
}

// NextDue calculates the next occurrence after now. One-time tasks and
// unparsable rules return Due unchanged.
func (t ScheduledTask) NextDue(now time.Time) time.Time {
	if t.TaskType != ScheduledTaskTypeRecurring || t.RecurringInterval == "" {
		return t.Due
	}

	rule, err := rrule.StrToRRule(t.RecurringInterval)
	if err != nil {
		return t.Due
	}
	rule.DTStart(t.Due)
	next := rule.After(now, false)
	if next.IsZero() {
		return t.Due
	}
	return next
}

func (t ScheduledTask) ToDoc() map[string]any {
	args := t.Arguments
	if args == nil {
		args = map[string]any{}
	}
	taskType := t.TaskType
	if taskType == "" {
		taskType = ScheduledTaskTypeOneTime
	}
	status := t.Status
	if status == "" {
		status = ScheduledTaskStatusActive
	}
	return map[string]any{
		"taskName":          t.TaskName,
		"arguments":         args,
		"lastRun":           nil,
		"due":               t.Due,
		"recurringInterval": t.RecurringInterval,
		"status":            string(status),
		"taskType":          string(taskType),
		"maxAttempt":        t.MaxAttempt,
		"createdAt":         docstore.ServerTimestamp,
	}
}

func ScheduledTaskFromDoc(doc *docstore.Document) (*ScheduledTask, error) {
	var t ScheduledTask
	if err := doc.DataTo(&t); err != nil {
		return nil, err
	}
	t.ID = doc.ID
	return &t, nil
}

// ScheduledTaskHistory tracks the execution history of scheduled tasks
type ScheduledTaskHistory struct {
	ID              string         `firestore:"-"`
	ScheduledTaskID string         `firestore:"scheduledTaskId"`
	TaskName        string         `firestore:"taskName"`
	RunAt           time.Time      `firestore:"runAt"`
	RuntimeMs       int64          `firestore:"runtimeMs"`
	Status          string         `firestore:"status"`
	AttemptNumber   int            `firestore:"attemptNumber"`
	Arguments       map[string]any `firestore:"arguments"`
	Result          map[string]any `firestore:"result"`
}

func (h ScheduledTaskHistory) ToDoc() map[string]any {
	return map[string]any{
		"scheduledTaskId": h.ScheduledTaskID,
		"taskName":        h.TaskName,
		"runAt":           h.RunAt,
		"runtimeMs":       h.RuntimeMs,
		"status":          h.Status,
		"attemptNumber":   h.AttemptNumber,
		"arguments":       h.Arguments,
		"result":          h.Result,
	}
}

func ScheduledTaskHistoryFromDoc(doc *docstore.Document) (*ScheduledTaskHistory, error) {
	var h ScheduledTaskHistory
	if err := doc.DataTo(&h); err != nil {
		return nil, err
	}
	h.ID = doc.ID
	return &h, nil
}
