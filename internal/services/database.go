package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/admxx9/pecc-studii-sub000/internal/config"
	"github.com/admxx9/pecc-studii-sub000/internal/docstore"
)

// InitDB opens a Postgres connection with pooling.
func InitDB(dsn string, verbose bool) (*gorm.DB, error) {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("database connection established")
	return db, nil
}

// OpenStore builds the document store selected by cfg.Store.Driver. The
// firestore driver needs app.
func OpenStore(ctx context.Context, cfg *config.Config, app *firebase.App) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverFirestore:
		if app == nil {
			return nil, fmt.Errorf("firestore driver requires firebase")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("open firestore: %w", err)
		}
		slog.Info("document store ready", "driver", cfg.Store.Driver)
		return docstore.NewFirestoreStore(client), nil

	case config.DriverPostgres:
		db, err := InitDB(cfg.Store.DatabaseURL, !cfg.IsProduction())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store := docstore.NewPostgresStore(db)
		if err := store.AutoMigrate(); err != nil {
			return nil, fmt.Errorf("migrate documents: %w", err)
		}
		slog.Info("document store ready", "driver", cfg.Store.Driver)
		return store, nil

	case config.DriverMemory:
		slog.Warn("using in-memory document store, data is lost on exit")
		return docstore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
