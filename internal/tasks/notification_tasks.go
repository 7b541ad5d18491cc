package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

const (
	defaultReminderDaysAhead = 3
	// reminderMarkerField holds the expiry date a reminder was already sent for.
	reminderMarkerField = "expiryReminderSentFor"
)

// Mailer sends plain text email.
type Mailer interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// PremiumExpiryReminderArgs are the arguments of the reminder task.
type PremiumExpiryReminderArgs struct {
	DaysAhead int `json:"days_ahead"`
}

// PremiumExpiryReminderTaskDef emails members whose plan expires soon. Each
// expiry date is reminded once.
type PremiumExpiryReminderTaskDef struct {
	Store     docstore.Store
	Mailer    Mailer
	PublicURL string
	Now       func() time.Time
}

func (t *PremiumExpiryReminderTaskDef) TaskID() string {
	return "premium_expiry_reminder"
}

func (t *PremiumExpiryReminderTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]any, error) {
	var args PremiumExpiryReminderArgs
	if err := decodeArgs(task.Arguments, &args); err != nil {
		return nil, err
	}
	if args.DaysAhead <= 0 {
		args.DaysAhead = defaultReminderDaysAhead
	}
	if t.Mailer == nil {
		return nil, fmt.Errorf("no mailer configured")
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	from := now()
	until := from.AddDate(0, 0, args.DaysAhead)

	docs, err := t.Store.Query(ctx, models.CollectionUsers, docstore.Query{
		Filters: []docstore.Filter{
			docstore.Where("premiumExpiryDate", docstore.OpGreater, from),
			docstore.Where("premiumExpiryDate", docstore.OpLessEqual, until),
		},
		OrderBy: "premiumExpiryDate",
	})
	if err != nil {
		return nil, fmt.Errorf("query expiring users: %w", err)
	}

	successCount := 0
	skippedCount := 0
	failureCount := 0
	var errs []string

	for _, doc := range docs {
		user, err := models.UserFromDoc(doc)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed user", "user_id", doc.ID, "error", err)
			skippedCount++
			continue
		}
		if user.Plan() == models.PlanNone || user.PremiumExpiryDate == nil || user.Email == "" {
			skippedCount++
			continue
		}
		marker := user.PremiumExpiryDate.UTC().Format(time.RFC3339)
		if sent, _ := doc.Data[reminderMarkerField].(string); sent == marker {
			skippedCount++
			continue
		}

		subject, body := t.reminderMessage(user)
		if err := t.Mailer.SendEmail(ctx, []string{user.Email}, subject, body); err != nil {
			failureCount++
			errs = append(errs, fmt.Sprintf("user %s: %v", user.ID, err))
			continue
		}
		if err := t.Store.Update(ctx, models.CollectionUsers, user.ID, []docstore.Update{
			{Path: reminderMarkerField, Value: marker},
		}); err != nil {
			slog.ErrorContext(ctx, "failed to mark reminder as sent", "user_id", user.ID, "error", err)
		}
		successCount++
	}

	result := map[string]any{
		"total_users":   len(docs),
		"success_count": successCount,
		"skipped_count": skippedCount,
		"failure_count": failureCount,
		"days_ahead":    args.DaysAhead,
	}
	if len(errs) > 0 {
		result["errors"] = errs
	}
	slog.InfoContext(ctx, "premium expiry reminders sent", "total", len(docs), "success", successCount, "skipped", skippedCount, "failure", failureCount)

	if failureCount > 0 && successCount == 0 {
		return result, fmt.Errorf("all %d reminders failed", failureCount)
	}
	return result, nil
}

func (t *PremiumExpiryReminderTaskDef) reminderMessage(user *models.User) (string, string) {
	name := user.DisplayName
	if name == "" {
		name = "membro"
	}
	link := strings.TrimRight(t.PublicURL, "/") + "/planos"

	subject := "Seu plano está perto de expirar"
	body := fmt.Sprintf("Olá %s,\n\nSeu plano %s expira em %s.\nRenove em %s para manter o acesso às aulas e ferramentas.\n",
		name,
		strings.ToUpper(string(user.Plan())),
		user.PremiumExpiryDate.Format("02/01/2006"),
		link,
	)
	return subject, body
}
