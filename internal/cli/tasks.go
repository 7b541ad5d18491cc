package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
	"github.com/admxx9/pecc-studii-sub000/internal/tasks"
)

const dueLayout = "2006-01-02 15:04"

// NewTasksCommand groups scheduled task management.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage scheduled tasks run by the worker",
	}
	cmd.AddCommand(newTasksScheduleCommand(rootOpts))
	cmd.AddCommand(newTasksListCommand(rootOpts))
	cmd.AddCommand(newTasksDisableCommand(rootOpts))
	return cmd
}

// knownTasks lists the task names the worker can execute.
func knownTasks() []string {
	r := tasks.NewRegistry()
	tasks.DefineTasks(r, tasks.Deps{})
	return r.Names()
}

// parseDue accepts RFC 3339 or "2006-01-02 15:04" in local time.
func parseDue(s string) (time.Time, error) {
	if due, err := time.Parse(time.RFC3339, s); err == nil {
		return due, nil
	}
	due, err := time.ParseInLocation(dueLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q: use %q (local) or RFC 3339", s, dueLayout)
	}
	return due, nil
}

func newTasksScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name       string
		argsJSON   string
		dueStr     string
		taskType   string
		recurring  string
		maxAttempt int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a task",
		Example: `  admin tasks schedule --name log_info --args '{"message":"ping"}'
  admin tasks schedule --name premium_expiry_reminder --args '{"days_ahead":3}' \
    --due "2026-01-01 09:00" --type recurring --recurring "FREQ=DAILY"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if known := knownTasks(); !slices.Contains(known, name) {
				return fmt.Errorf("unknown task %q: must be one of %v", name, known)
			}

			var args map[string]any
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
					return fmt.Errorf("invalid JSON arguments: %w", err)
				}
			}

			due := rootOpts.now()
			if dueStr != "" {
				parsed, err := parseDue(dueStr)
				if err != nil {
					return err
				}
				due = parsed
			}

			tt := models.ScheduledTaskType(taskType)
			if tt != models.ScheduledTaskTypeOneTime && tt != models.ScheduledTaskTypeRecurring {
				return fmt.Errorf("invalid task type %q: must be onetime or recurring", taskType)
			}

			task, err := tasks.BuildScheduledTask(name, args, due, recurring, tt, maxAttempt)
			if err != nil {
				return err
			}

			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := tasks.Schedule(cmd.Context(), store, task); err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd)
			return f.Result(task, func(w io.Writer) {
				fmt.Fprintf(w, "Successfully created task ID: %s\n", task.ID)
				fmt.Fprintf(w, "Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due.Format(time.RFC3339), task.TaskType)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name of the task")
	cmd.Flags().StringVar(&argsJSON, "args", "", "JSON arguments for the task")
	cmd.Flags().StringVar(&dueStr, "due", "", "due date (default now)")
	cmd.Flags().StringVar(&taskType, "type", string(models.ScheduledTaskTypeOneTime), "task type (onetime|recurring)")
	cmd.Flags().StringVar(&recurring, "recurring", "", "RRULE for recurring tasks, e.g. FREQ=DAILY")
	cmd.Flags().IntVar(&maxAttempt, "max-attempt", 3, "attempts per run")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newTasksListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks by due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			q := docstore.Query{OrderBy: "due"}
			if status != "" {
				q.Filters = append(q.Filters, docstore.Where("status", docstore.OpEqual, status))
			}
			docs, err := store.Query(cmd.Context(), models.CollectionScheduledTasks, q)
			if err != nil {
				return err
			}
			list := make([]*models.ScheduledTask, 0, len(docs))
			for _, doc := range docs {
				t, err := models.ScheduledTaskFromDoc(doc)
				if err != nil {
					return err
				}
				list = append(list, t)
			}

			f := newFormatter(rootOpts, cmd)
			return f.Result(list, func(w io.Writer) {
				rows := make([][]any, 0, len(list))
				for _, t := range list {
					lastRun := "-"
					if t.LastRun != nil {
						lastRun = t.LastRun.Format(dueLayout)
					}
					rows = append(rows, []any{t.ID, t.TaskName, t.TaskType, t.Status, t.Due.Format(dueLayout), lastRun})
				}
				f.Table([]any{"ID", "NAME", "TYPE", "STATUS", "DUE", "LAST RUN"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|done|failure|disabled)")
	return cmd
}

func newTasksDisableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <task-id>",
		Short: "Stop the worker from running a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			err = store.Update(cmd.Context(), models.CollectionScheduledTasks, args[0], []docstore.Update{
				{Path: "status", Value: string(models.ScheduledTaskStatusDisabled)},
			})
			if err != nil {
				return fmt.Errorf("disable task %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "disabled %s\n", args[0])
			return nil
		},
	}
}
