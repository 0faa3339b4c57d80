package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-telemed/internal/config"
	"go-telemed/internal/database"
	"go-telemed/internal/event"
	"go-telemed/internal/handler"
	"go-telemed/internal/metrics"
	"go-telemed/internal/middleware"
	"go-telemed/internal/password"
	"go-telemed/internal/repository"
	"go-telemed/internal/router"
	"go-telemed/internal/service"
	"go-telemed/internal/token"
)

const (
	shutdownTimeout   = 10 * time.Second
	redisKeyPrefix    = "telemed:revoked:"
	consumerDrainWait = 2 * time.Second
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

// sweeper removes deny-list entries whose tokens have expired anyway.
type sweeper func(ctx context.Context) (int64, error)

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	slog.Info("opening database", "driver", cfg.DatabaseDriver)
	db, err := database.New(ctx, database.Options{
		Driver:   cfg.DatabaseDriver,
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{db: db}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := db.Migrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	userRepo := repository.NewUserRepository(db.SQL, db.Dialect)
	auditRepo := repository.NewAuditRepository(db.SQL, db.Dialect)
	slog.Info("database ready")

	recorder := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled && cfg.MetricsToken == "" {
		slog.Warn("metrics endpoint is enabled without METRICS_TOKEN; /metrics is publicly readable")
	}

	codec, err := token.NewCodec([]byte(cfg.JWTSecret), cfg.JWTAlgorithm)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	denylist, sweep, err := a.openDenylist(ctx, cfg, db)
	if err != nil {
		a.close()
		return nil, err
	}

	verifierOpts := []token.VerifierOption{token.WithObserver(recorder)}
	if denylist != nil {
		verifierOpts = append(verifierOpts, token.WithDenylist(denylist))
	}
	issuer := token.NewIssuer(codec, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, token.SystemClock)
	verifier := token.NewVerifier(codec, verifierOpts...)

	bus := event.NewBus()
	hasher := password.NewBcryptHasher(cfg.BcryptCost)

	authService := service.NewAuthService(userRepo, hasher, issuer, verifier, bus, recorder)
	if denylist != nil {
		authService = authService.WithDenylist(denylist)
	}
	resetService := service.NewResetService(userRepo, hasher, cfg.ResetTokenTTL, cfg.ResetLinkBase, bus, recorder)
	auditService := service.NewAuditService(auditRepo)
	notifier := service.NewResetNotifier(cfg.IsDevelopment())

	if err := authService.SeedAdmin(ctx, cfg.SeedAdminPassword); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to seed admin: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	auditDone := event.Consume(bgCtx, bus, "audit", auditService.Record)
	notifierDone := event.Consume(bgCtx, bus, "reset-notifier", notifier.Handle)
	if sweep != nil {
		go runCleanup(bgCtx, cfg.CleanupInterval, sweep)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, func() {
		bgCancel()
		waitFor(auditDone, consumerDrainWait)
		waitFor(notifierDone, consumerDrainWait)
	})

	authMiddleware := middleware.NewAuthMiddleware(authService)
	appRouter := router.New(cfg, authMiddleware, recorder, router.Handlers{
		Auth:   handler.NewAuthHandler(authService, resetService),
		Users:  handler.NewUserHandler(authService),
		Audit:  handler.NewAuditHandler(auditService),
		Health: handler.NewHealthHandler(db),
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

// Handler exposes the fully wired router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) openDenylist(ctx context.Context, cfg *config.Config, db *database.DB) (token.Denylist, sweeper, error) {
	switch cfg.DenylistBackend {
	case config.DenylistMemory:
		d := token.NewMemoryDenylist(token.SystemClock)
		return d, d.Sweep, nil
	case config.DenylistDatabase:
		d := repository.NewRevokedTokenRepository(db.SQL, db.Dialect, token.SystemClock)
		return d, d.CleanExpired, nil
	case config.DenylistRedis:
		d, err := token.NewRedisDenylist(ctx, cfg.RedisURL, redisKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.cleanupFuncs = append(a.cleanupFuncs, func() {
			if err := d.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		})
		return d, nil, nil
	default:
		return nil, nil, nil
	}
}

func runCleanup(ctx context.Context, interval time.Duration, sweep sweeper) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sweep(ctx)
			if err != nil {
				slog.Warn("revoked token cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("revoked tokens cleaned up", "removed", removed)
			}
		}
	}
}

func waitFor(done <-chan struct{}, limit time.Duration) {
	select {
	case <-done:
	case <-time.After(limit):
	}
}

// close runs cleanup functions in reverse registration order.
func (a *App) close() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}

// Close releases background workers and connections without serving.
func (a *App) Close() {
	a.close()
}

func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case err := <-errCh:
		a.close()
		return fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.close()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
