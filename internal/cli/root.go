// Package cli implements the back-office command line.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/admxx9/pecc-studii-sub000/internal/config"
	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
	"github.com/admxx9/pecc-studii-sub000/internal/models"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

// StoreOpener returns the document store the commands operate on.
type StoreOpener func(ctx context.Context, configPath string) (docstore.Store, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	open  StoreOpener
	store docstore.Store
	now   func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// cliActor is the identity recorded on admin writes made from the CLI.
var cliActor = models.Actor{UserID: "admin-cli", Name: "admin-cli", IsAdmin: true}

// NewRootCommand creates the root command. A nil opener uses the configured
// store.
func NewRootCommand(open StoreOpener) *cobra.Command {
	if open == nil {
		open = OpenConfiguredStore
	}
	opts := &RootOptions{open: open, now: time.Now}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Back-office tools for the modding academy",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.store == nil {
				return nil
			}
			return opts.store.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCodesCommand(opts))
	cmd.AddCommand(NewUsersCommand(opts))
	cmd.AddCommand(NewTasksCommand(opts))

	return cmd
}

// Store opens the store on first use.
func (o *RootOptions) Store(ctx context.Context) (docstore.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	store, err := o.open(ctx, o.ConfigPath)
	if err != nil {
		return nil, err
	}
	o.store = store
	return store, nil
}

// OpenConfiguredStore loads the config and opens the store it selects.
func OpenConfiguredStore(ctx context.Context, configPath string) (docstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	app, err := services.InitFirebase(ctx, cfg.Firebase)
	if err != nil && cfg.Store.Driver == config.DriverFirestore {
		return nil, err
	}
	return services.OpenStore(ctx, cfg, app)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
