package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

// BuildScheduledTask is a helper to build ScheduledTask records generically.
// args is round-tripped through JSON so any struct can be used.
func BuildScheduledTask(taskName string, args any, due time.Time, recurringInterval string, taskType models.ScheduledTaskType, maxAttempt int) (*models.ScheduledTask, error) {
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var mapArgs map[string]any
	if err := json.Unmarshal(argsBytes, &mapArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
	}

	if taskType == models.ScheduledTaskTypeRecurring && recurringInterval == "" {
		return nil, fmt.Errorf("recurring task %s needs a recurrence rule", taskName)
	}
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	return &models.ScheduledTask{
		TaskName:          taskName,
		Arguments:         mapArgs,
		Due:               due,
		RecurringInterval: recurringInterval,
		Status:            models.ScheduledTaskStatusActive,
		TaskType:          taskType,
		MaxAttempt:        maxAttempt,
	}, nil
}

// Schedule stores task so the worker picks it up once due.
func Schedule(ctx context.Context, store docstore.Store, task *models.ScheduledTask) (string, error) {
	id, err := store.Create(ctx, models.CollectionScheduledTasks, task.ToDoc())
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", task.TaskName, err)
	}
	task.ID = id
	return id, nil
}

// decodeArgs converts task arguments into a typed struct.
func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return nil
}
