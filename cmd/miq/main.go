package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/miq-labs/miq-be/cmd/miq/cli"
	"github.com/miq-labs/miq-be/internal/app"
	"github.com/miq-labs/miq-be/internal/audit"
	audithttp "github.com/miq-labs/miq-be/internal/audit/http"
	"github.com/miq-labs/miq-be/internal/auth"
	"github.com/miq-labs/miq-be/internal/observability"
	"github.com/miq-labs/miq-be/internal/platform/db"
	"github.com/miq-labs/miq-be/internal/ratelimit"
	"github.com/miq-labs/miq-be/internal/rbac"
	"github.com/miq-labs/miq-be/internal/roles"
	"github.com/miq-labs/miq-be/internal/shared"
	"github.com/miq-labs/miq-be/internal/users"
	"github.com/miq-labs/miq-be/jobs"
	"github.com/miq-labs/miq-be/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// policy lint works off the compiled-in table, no environment needed.
	if len(os.Args) > 1 && os.Args[1] == "policy" {
		os.Exit(runPolicy(os.Args[2:]))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, cfg, logger, os.Args[1], os.Args[2:]))
	}

	if err := db.Migrate(cfg.PGDSN, migrations.FS, "."); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	guard := rbac.NewGuard(shared.RolePermissions())
	guardMiddleware := rbac.NewMiddleware(guard, logger, metrics)

	auditLogger := shared.NewAuditLogger(pool)
	sessions := shared.NewSessionStore(redisClient, cfg.SessionTTL)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, tokens, sessions, auditLogger, metrics)
	authHandler := auth.NewHandler(logger, authService, guardMiddleware)

	usersCache := users.NewCache(redisClient, cfg.UserCacheTTL, metrics)
	if err := usersCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, usersCache, auditLogger)
	usersHandler := users.NewHandler(logger, usersService, guardMiddleware)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, guard, auditLogger, usersCache)
	rolesHandler := roles.NewHandler(logger, rolesService, guardMiddleware)

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, auditService, guardMiddleware)

	var limitStore ratelimit.Store
	if cfg.RateLimitStore == "redis" {
		limitStore = ratelimit.NewRedisStore(redisClient)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := &ratelimit.Middleware{
		Store:    limitStore,
		Requests: cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
		FailOpen: cfg.RateLimitFailOpen,
		Logger:   logger,
		Observer: metrics,
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		RolesHandler: rolesHandler,
		AuditHandler: auditHandler,
		JobHandler:   jobHandler,
		Pool:         pool,
		Redis:        redisClient,
		Identity:     authService,
		Limiter:      limiter,
		Metrics:      metrics,
	})

	// Every permission referenced by a mounted route must be granted by
	// at least one role, otherwise the deployment is misconfigured.
	if err := guard.Validate(guardMiddleware.Mounted()); err != nil {
		logger.Error("authorization policy invalid", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

func runPolicy(args []string) int {
	if len(args) > 0 && args[0] == "lint" {
		args = args[1:]
	}
	fs := flag.NewFlagSet("policy lint", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit a machine readable summary")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return cli.NewPolicyCLI(shared.RolePermissions()).LintCommand(cli.PolicyLintOptions{JSONOutput: *jsonOut})
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, name string, args []string) int {
	switch name {
	case "migrate":
		if err := db.Migrate(cfg.PGDSN, migrations.FS, "."); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			return 1
		}
		logger.Info("migrations applied")
		return 0
	case "jobs":
		return runJobs(ctx, cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected migrate, jobs or policy)\n", name)
		return 1
	}
}

func runJobs(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: miq jobs enqueue <type> | stats | scheduled")
		return 1
	}
	ops, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		logger.Error("connect job queue", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := ops.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch args[0] {
	case "enqueue":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: miq jobs enqueue <type>")
			return 1
		}
		info, err := ops.Trigger(ctx, args[1])
		if err != nil {
			logger.Error("enqueue job", slog.String("job", args[1]), slog.Any("error", err))
			return 1
		}
		logger.Info("job enqueued", slog.String("job", args[1]), slog.String("id", info.ID))
		return 0
	case "stats":
		stats, err := ops.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	case "scheduled":
		tasks, err := ops.ListScheduled(ctx, 10)
		if err != nil {
			logger.Error("list scheduled", slog.Any("error", err))
			return 1
		}
		for _, task := range tasks {
			fmt.Printf("%s %s next=%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 1
	}
}
