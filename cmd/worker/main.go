package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/admxx9/pecc-studii-sub000/internal/config"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
	"github.com/admxx9/pecc-studii-sub000/internal/tasks"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	once := flag.Bool("once", false, "process due tasks once and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := services.InitFirebase(ctx, cfg.Firebase)
	if err != nil && cfg.Store.Driver == config.DriverFirestore {
		return err
	}

	store, err := services.OpenStore(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer store.Close()

	mailer := services.NewEmailService(cfg.SMTP)
	if !mailer.Configured() {
		slog.Warn("SMTP not configured, reminder emails will fail")
	}

	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, tasks.Deps{
		Store:     store,
		Mailer:    mailer,
		PublicURL: cfg.App.PublicURL,
		Now:       time.Now,
	})

	var opts []tasks.RunnerOption
	if cfg.Redis.URL != "" {
		client, err := services.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("redis unavailable, running without task locks", "error", err)
		} else {
			defer client.Close()
			opts = append(opts, tasks.WithLocker(services.NewRedisCache(client, cfg.App.Name+":"), cfg.Worker.Tick*2))
		}
	}
	runner := tasks.NewRunner(store, registry, opts...)

	slog.Info("worker started", "tick", cfg.Worker.Tick, "tasks", registry.Names())

	// run once on start so a restart does not wait a full tick
	processScheduledTasks(ctx, runner)
	if once {
		return nil
	}

	ticker := time.NewTicker(cfg.Worker.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processScheduledTasks(ctx, runner)
		case <-ctx.Done():
			slog.Info("shutting down worker")
			return nil
		}
	}
}

func processScheduledTasks(ctx context.Context, runner *tasks.Runner) {
	n, err := runner.RunDue(ctx)
	if err != nil {
		slog.Error("error processing scheduled tasks", "error", err)
		return
	}
	if n > 0 {
		slog.Info("processed scheduled tasks", "count", n)
	}
}
