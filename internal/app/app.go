// Package app wires configuration, storage, the platform client, and the
// HTTP surface into a runnable application.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dpm/internal/api"
	"dpm/internal/audit"
	"dpm/internal/config"
	internaldb "dpm/internal/db"
	"dpm/internal/dbxapi"
	"dpm/internal/domain"
	"dpm/internal/provision"
)

// App holds the fully-wired application. Close releases what New opened.
type App struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Trail   *audit.Trail
	Client  *dbxapi.Client
	Runner  *provision.Runner
	Handler http.Handler

	auditDB *sql.DB
	sweeper *audit.Sweeper
}

// New wires the application from config: audit stores, retention sweeper,
// token provider, executor, platform client, orchestrator, batch runner,
// and the HTTP router.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Logger: logger}

	// Audit backends. The SQL store is primary; the CSV file catches
	// records when the database is unavailable.
	var primary, fallback audit.Store
	if cfg.Audit.DBPath != "" {
		auditDB, err := internaldb.OpenSQLite(cfg.Audit.DBPath, "write", 0)
		if err != nil {
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		if err := internaldb.RunMigrations(auditDB); err != nil {
			_ = auditDB.Close()
			return nil, fmt.Errorf("audit migrations: %w", err)
		}
		a.auditDB = auditDB
		sqlStore := audit.NewSQLStore(auditDB)
		primary = sqlStore

		if cfg.Audit.RetentionSchedule != "" {
			a.sweeper = audit.NewSweeper(sqlStore, cfg.Audit.RetentionDays, logger)
			if err := a.sweeper.Start(cfg.Audit.RetentionSchedule); err != nil {
				a.Close()
				return nil, fmt.Errorf("start retention sweeper: %w", err)
			}
		}
	}
	if cfg.Audit.FallbackPath != "" {
		fallback = audit.NewFileStore(cfg.Audit.FallbackPath)
	}
	a.Trail = audit.NewTrail(primary, fallback, logger)

	// Platform client.
	var tokens domain.TokenProvider
	if cfg.Platform.OAuthEnabled() {
		tokens = dbxapi.NewOAuthTokenSource(
			cfg.Platform.AccountHost, cfg.Platform.AccountID,
			cfg.Platform.ClientID, cfg.Platform.ClientSecret, logger,
		)
	} else {
		tokens = dbxapi.StaticTokenProvider(cfg.Platform.StaticToken)
	}
	exec := dbxapi.NewExecutor(tokens, dbxapi.ExecutorConfig{
		Timeout:     cfg.Platform.RequestTimeout,
		MaxAttempts: cfg.Platform.MaxAttempts,
	}, logger)
	a.Client = dbxapi.NewClient(exec, dbxapi.ClientConfig{
		AccountHost:   cfg.Platform.AccountHost,
		WorkspaceHost: cfg.Platform.WorkspaceHost,
		AccountID:     cfg.Platform.AccountID,
	}, logger)

	// Provisioning pipeline + HTTP surface.
	a.Runner = provision.NewRunner(provision.NewOrchestrator(a.Client, a.Trail, logger), logger)
	handler := api.NewHandler(a.Runner, a.Trail, cfg.AdminEmail, logger)
	a.Handler = api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})

	return a, nil
}

// Close stops the sweeper and closes the audit database.
func (a *App) Close() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.auditDB != nil {
		_ = a.auditDB.Close()
	}
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully with a 10s drain window.
func (a *App) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Cfg.ListenAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		a.Logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
