package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

const (
	historyStatusSuccess         = "success"
	historyStatusFailure         = "failure"
	historyStatusHandlerNotFound = "handler_not_found"

	defaultLockTTL = 10 * time.Minute
)

// Locker claims a key for a while. It lets several workers share one store
// without running the same task twice.
type Locker interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
}

// Runner executes due scheduled tasks.
type Runner struct {
	store    docstore.Store
	registry *Registry
	now      func() time.Time
	locker   Locker
	lockTTL  time.Duration
}

type RunnerOption func(*Runner)

// WithLocker makes the runner claim each task before executing it.
func WithLocker(l Locker, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithRunnerClock overrides the time source.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(store docstore.Store, registry *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:    store,
		registry: registry,
		now:      time.Now,
		lockTTL:  defaultLockTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunDue executes every active task whose due time has passed and returns
// how many were processed.
func (r *Runner) RunDue(ctx context.Context) (int, error) {
	now := r.now()
	docs, err := r.store.Query(ctx, models.CollectionScheduledTasks, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("status", docstore.OpEqual, string(models.ScheduledTaskStatusActive)),
			docstore.Where("due", docstore.OpLessEqual, now),
		},
		OrderBy: "due",
	})
	if err != nil {
		return 0, fmt.Errorf("fetch pending tasks: %w", err)
	}
	if len(docs) == 0 {
		slog.DebugContext(ctx, "no pending tasks")
		return 0, nil
	}
	slog.InfoContext(ctx, "found pending tasks", "count", len(docs))

	processed := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		task, err := models.ScheduledTaskFromDoc(doc)
		if err != nil {
			slog.ErrorContext(ctx, "skipping malformed task", "task_id", doc.ID, "error", err)
			continue
		}
		if !r.claim(ctx, task) {
			continue
		}
		r.execute(ctx, *task)
		processed++
	}
	return processed, nil
}

func (r *Runner) claim(ctx context.Context, task *models.ScheduledTask) bool {
	if r.locker == nil {
		return true
	}
	key := fmt.Sprintf("task-lock:%s:%d", task.ID, task.Due.Unix())
	ok, err := r.locker.SetNX(ctx, key, "1", r.lockTTL)
	if err != nil {
		// Lock errors fall through to running the task.
		slog.WarnContext(ctx, "task lock unavailable", "task_id", task.ID, "error", err)
		return true
	}
	if !ok {
		slog.InfoContext(ctx, "task claimed by another worker", "task_id", task.ID)
	}
	return ok
}

// execute runs task up to MaxAttempt times, recording every attempt.
func (r *Runner) execute(ctx context.Context, task models.ScheduledTask) {
	slog.InfoContext(ctx, "processing task", "task_name", task.TaskName, "task_id", task.ID)

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		slog.ErrorContext(ctx, "task handler not found", "task_name", task.TaskName, "task_id", task.ID)
		runAt := r.now()
		r.recordHistory(ctx, models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           runAt,
			Status:          historyStatusHandlerNotFound,
			AttemptNumber:   1,
			Arguments:       task.Arguments,
			Result:          map[string]any{"error": "Handler not found"},
		})
		r.updateTask(ctx, task.ID, runAt, models.ScheduledTaskStatusFailure, nil)
		return
	}

	maxAttempt := task.MaxAttempt
	if maxAttempt < 1 {
		maxAttempt = 1
	}

	var (
		runAt     time.Time
		succeeded bool
	)
	for attempt := 1; attempt <= maxAttempt; attempt++ {
		runAt = r.now()
		start := time.Now()
		result, err := handler(ctx, task)
		runtime := time.Since(start)

		status := historyStatusSuccess
		if err != nil {
			status = historyStatusFailure
			if result == nil {
				result = map[string]any{}
			}
			result["error"] = err.Error()
			slog.WarnContext(ctx, "task attempt failed", "task_name", task.TaskName, "task_id", task.ID, "attempt", attempt, "error", err)
		}
		r.recordHistory(ctx, models.ScheduledTaskHistory{
			ScheduledTaskID: task.ID,
			TaskName:        task.TaskName,
			RunAt:           runAt,
			RuntimeMs:       runtime.Milliseconds(),
			Status:          status,
			AttemptNumber:   attempt,
			Arguments:       task.Arguments,
			Result:          result,
		})
		if err == nil {
			succeeded = true
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	status, due := r.nextState(task, runAt, succeeded)
	r.updateTask(ctx, task.ID, runAt, status, due)
	slog.InfoContext(ctx, "task finished", "task_name", task.TaskName, "task_id", task.ID, "succeeded", succeeded, "status", status)
}

// nextState decides where a task goes after a run. Recurring tasks move to
// their next occurrence even after a failed run; a rule with no further
// occurrence ends the task.
func (r *Runner) nextState(task models.ScheduledTask, runAt time.Time, succeeded bool) (models.ScheduledTaskStatus, *time.Time) {
	if task.TaskType == models.ScheduledTaskTypeRecurring {
		next := task.NextDue(runAt)
		if next.After(task.Due) {
			return models.ScheduledTaskStatusActive, &next
		}
		if !succeeded {
			return models.ScheduledTaskStatusFailure, nil
		}
		return models.ScheduledTaskStatusDone, nil
	}
	if !succeeded {
		return models.ScheduledTaskStatusFailure, nil
	}
	return models.ScheduledTaskStatusDone, nil
}

func (r *Runner) updateTask(ctx context.Context, id string, lastRun time.Time, status models.ScheduledTaskStatus, due *time.Time) {
	updates := []docstore.Update{
		{Path: "lastRun", Value: lastRun},
		{Path: "status", Value: string(status)},
	}
	if due != nil {
		updates = append(updates, docstore.Update{Path: "due", Value: *due})
	}
	if err := r.store.Update(ctx, models.CollectionScheduledTasks, id, updates); err != nil {
		slog.ErrorContext(ctx, "failed to update task", "task_id", id, "error", err)
	}
}

func (r *Runner) recordHistory(ctx context.Context, h models.ScheduledTaskHistory) {
	if _, err := r.store.Create(ctx, models.CollectionScheduledTaskHistory, h.ToDoc()); err != nil {
		slog.ErrorContext(ctx, "failed to record task history", "task_id", h.ScheduledTaskID, "error", err)
	}
}
