package tasks

import (
	"context"
	"log/slog"

	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

// LogInfoTaskDef writes its message to the log. Useful to check that the
// worker is alive.
type LogInfoTaskDef struct{}

func (t *LogInfoTaskDef) TaskID() string {
	return "log_info"
}

func (t *LogInfoTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]any, error) {
	message, ok := task.Arguments["message"].(string)
	if !ok {
		message = "No message provided"
	}
	slog.InfoContext(ctx, "log_info task", "task_id", task.ID, "message", message)

	return map[string]any{
		"status":            "success",
		"message":           message,
		"max_attempts_info": task.MaxAttempt,
	}, nil
}

var LogInfoTask = &LogInfoTaskDef{}
