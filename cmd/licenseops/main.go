package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/licenseops/licenseops/internal/access"
	"github.com/licenseops/licenseops/internal/app"
	"github.com/licenseops/licenseops/internal/auth"
	"github.com/licenseops/licenseops/internal/backend"
	"github.com/licenseops/licenseops/internal/console"
	"github.com/licenseops/licenseops/internal/observability"
	"github.com/licenseops/licenseops/internal/platform/cache"
	"github.com/licenseops/licenseops/internal/platform/db"
	"github.com/licenseops/licenseops/internal/reports"
	"github.com/licenseops/licenseops/internal/reports/export"
	reportshttp "github.com/licenseops/licenseops/internal/reports/http"
	"github.com/licenseops/licenseops/internal/shared"
	"github.com/licenseops/licenseops/internal/view"
	"github.com/licenseops/licenseops/jobs"
	"github.com/licenseops/licenseops/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "licenseops_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	menu, err := access.LoadMenuFile(cfg.MenuFile)
	if err != nil {
		logger.Error("load menu", slog.Any("error", err))
		os.Exit(1)
	}
	guard := access.Middleware{Logger: logger, LoginURL: "/auth/login"}

	metrics := observability.NewMetrics()

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	source := reports.NewCachedSource(backendClient, redisClient, cfg.ReportCacheTTL)
	source.Logger = logger
	catalog := reports.NewCatalog(source)

	store := reportshttp.NewWorkspaceStore(catalog, logger, metrics, cfg.WorkspaceIdle)
	defer store.Close()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)
	authHandler.UseMenu(menu)
	authHandler.OnSignOut(store.Drop)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, logger)

	reportsHandler := reportshttp.NewHandler(logger, catalog, store, templates, csrfManager, guard, reportshttp.Options{
		PDF:   export.NewPDFExporter(reportClient),
		Audit: shared.NewAuditLogger(dbpool),
		Menu:  menu,
	})

	consoleHandler := console.NewHandler(logger, templates, csrfManager, guard, console.Options{
		Menu:       menu,
		Backend:    backendClient,
		BackendURL: cfg.BackendURL,
		AppEnv:     cfg.AppEnv,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Templates:      templates,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Guard:          guard,
		Menu:           menu,
		AuthHandler:    authHandler,
		ConsoleHandler: consoleHandler,
		ReportsHandler: reportsHandler,
		ReportHandler:  reportHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
