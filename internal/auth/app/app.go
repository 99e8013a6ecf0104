package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpapi "github.com/aussiebroadwan/tabauth/internal/auth/http"
	"github.com/aussiebroadwan/tabauth/internal/auth/revocation"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	denylist *revocation.Denylist // nil when revocation is disabled
	hasher   *cryptox.PasswordHasher
	codec    *jwtx.Codec

	// Services
	sessions *service.SessionManager
	gate     *service.AccessGate
	roles    *service.RolesService
	mfa      *service.MFAService
	importer *service.Importer

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application with a logger built from cfg.
func New(ctx context.Context, cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service:    "tabauth",
		Version:    BuildVersion,
		Env:        cfg.Env,
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		SetDefault: true,
	})
	return NewWithLogger(ctx, cfg, logger)
}

// NewWithLogger creates a new Application instance with all dependencies
// initialized. Roles from cfg are ensured in the store before it returns.
func NewWithLogger(ctx context.Context, cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &Application{cfg: cfg, logger: logger}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(ctx); err != nil {
		_ = app.close()
		return nil, err
	}

	if err := app.roles.EnsureRoles(slogx.WithContext(ctx, logger), cfg.Roles); err != nil {
		_ = app.close()
		return nil, fmt.Errorf("failed to ensure roles: %w", err)
	}

	app.initHTTP()
	return app, nil
}

// Sessions exposes the session manager for the CLI.
func (app *Application) Sessions() *service.SessionManager { return app.sessions }

// Importer exposes the legacy credential importer for the CLI.
func (app *Application) Importer() *service.Importer { return app.importer }

// Handler returns the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails, then shuts down gracefully.
func (app *Application) Run(ctx context.Context) error {
	// Hash the dummy password up front so the first unknown-user login does
	// not pay for it.
	app.sessions.Warm(slogx.WithContext(ctx, app.logger))

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
		"revocation", app.denylist != nil,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.close()
			return fmt.Errorf("server failed: %w", err)
		}
		return app.close()
	case <-ctx.Done():
		app.logger.Info("shutdown signal received", "cause", context.Cause(ctx))
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.close(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the store and denylist without touching the HTTP server.
// It is what CLI commands call when they never started serving.
func (app *Application) Close() error { return app.close() }

func (app *Application) close() error {
	var errs []error
	if app.denylist != nil {
		errs = append(errs, app.denylist.Close())
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured store and applies migrations
func (app *Application) initDatabase() error {
	switch app.cfg.StoreDriver {
	case DriverMemory:
		app.db = memory.NewStore()
		app.logger.Warn("using the in-memory store; accounts are lost on restart")
		return nil

	case DriverSQLite:
		db, err := sqlite.NewStore("file:" + app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		app.db = db

		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}

		app.logger.Info("database migrations applied successfully", "path", app.cfg.DatabaseFile)
		return nil
	}
	return fmt.Errorf("unknown store driver %q", app.cfg.StoreDriver)
}

// initServices builds the crypto primitives and business services
func (app *Application) initServices(ctx context.Context) error {
	pepper, err := cryptox.LoadOrGeneratePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.NewPasswordHasher(cryptox.HasherOptions{Pepper: pepper})

	key, err := LoadSigningKey(app.cfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	app.codec, err = jwtx.NewCodec(jwtx.CodecOptions{
		Key:    key,
		Issuer: app.cfg.Issuer,
		Leeway: app.cfg.TokenLeeway,
	})
	if err != nil {
		return fmt.Errorf("failed to build token codec: %w", err)
	}

	var revoker service.Revoker
	if app.cfg.Revocation {
		app.denylist, err = revocation.NewDenylist(ctx, revocation.Config{
			MaxTokenLifetime: app.cfg.RefreshTTL,
			Leeway:           app.codec.Leeway(),
			MaxSizeMB:        app.cfg.DenylistMaxSizeMB,
		})
		if err != nil {
			return fmt.Errorf("failed to create denylist: %w", err)
		}
		revoker = app.denylist
		if app.cfg.DenylistMaxSizeMB > 0 {
			app.logger.Warn("denylist size is capped; evicted entries stop being revoked",
				"max_size_mb", app.cfg.DenylistMaxSizeMB)
		}
	}

	totp := &service.TOTPVerifier{}

	app.sessions = &service.SessionManager{
		Store:       app.db,
		Hasher:      app.hasher,
		Codec:       app.codec,
		Revoker:     revoker,
		TOTP:        totp,
		AccessTTL:   app.cfg.AccessTTL,
		RefreshTTL:  app.cfg.RefreshTTL,
		DefaultRole: app.cfg.DefaultRole,
	}
	app.gate = &service.AccessGate{Codec: app.codec, Revoker: revoker}
	app.roles = &service.RolesService{Store: app.db}
	app.mfa = &service.MFAService{
		Store:  app.db,
		Hasher: app.hasher,
		TOTP:   totp,
		Issuer: app.cfg.Issuer,
	}
	app.importer = &service.Importer{Store: app.db, DefaultRole: app.cfg.DefaultRole}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.db, BuildVersion, app.logger)

	router.Sessions = app.sessions
	router.Gate = app.gate
	router.Roles = app.roles
	router.MFA = app.mfa
	router.Limits = app.cfg.RateLimits
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
