package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/admxx9/pecc-studii-sub000/internal/config"
	"github.com/admxx9/pecc-studii-sub000/internal/handlers"
	authMiddleware "github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := services.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		slog.Warn("firebase initialization failed, auth features will not work", "error", err)
	}

	store, err := services.OpenStore(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = services.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("redis unavailable, falling back to in-process throttling", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	prefix := cfg.App.Name + ":"
	entitlementOpts := []services.EntitlementOption{services.WithCodeLength(cfg.Codes.Length)}
	catalogOpts := []services.CatalogOption{}
	if redisClient != nil {
		catalogOpts = append(catalogOpts, services.WithToolCache(services.NewRedisCache(redisClient, prefix+"cache:"), cfg.Redis.CacheTTL))
	}
	// zero disables the redeem throttle
	if perMinute := cfg.Codes.RedeemPerMinute; perMinute > 0 {
		var throttle services.Throttle = services.NewLocalThrottle(perMinute)
		if redisClient != nil {
			throttle = services.NewRedisThrottle(redisClient, prefix+"redeem:", perMinute)
		}
		entitlementOpts = append(entitlementOpts, services.WithRedeemThrottle(throttle))
	}

	users := services.NewUserService(store, time.Now)
	contracts := services.NewContractService(store, time.Now)
	deps := handlers.Deps{
		Users:        users,
		Entitlements: services.NewEntitlementService(store, entitlementOpts...),
		Contracts:    contracts,
		Tickets:      services.NewTicketService(store, contracts, time.Now),
		Catalog:      services.NewCatalogService(store, catalogOpts...),
		Payments:     services.NewPaymentService(store, cfg.Payment.BaseURL, cfg.Payment.Token, cfg.Payment.Timeout),
		SecureCookie: cfg.IsProduction(),
		Now:          time.Now,
	}
	if err := wireAuth(ctx, app, &deps); err != nil {
		slog.Warn("auth client unavailable", "error", err)
	}
	if cfg.Payment.Token == "" {
		slog.Warn("PAGBANK_TOKEN not set, PIX checkout is disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = authMiddleware.JSONErrorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	handlers.Register(e, deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", addr, "environment", cfg.App.Environment, "store", cfg.Store.Driver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// wireAuth sets the token verifier and session issuer from the Firebase app.
func wireAuth(ctx context.Context, app *firebase.App, deps *handlers.Deps) error {
	if app == nil {
		return errors.New("firebase not initialized")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return fmt.Errorf("init auth client: %w", err)
	}
	deps.Verifier = client
	deps.Sessions = client
	return nil
}
