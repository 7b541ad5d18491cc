package tasks

import (
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

// Deps are the collaborators task definitions need.
type Deps struct {
	Store     docstore.Store
	Mailer    Mailer
	PublicURL string
	Now       func() time.Time
}

// DefineTasks registers all available tasks on r.
func DefineTasks(r *Registry, deps Deps) {
	r.Register(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)

	reminder := &PremiumExpiryReminderTaskDef{
		Store:     deps.Store,
		Mailer:    deps.Mailer,
		PublicURL: deps.PublicURL,
		Now:       deps.Now,
	}
	r.Register(reminder.TaskID(), reminder.HandleExecution)
}
