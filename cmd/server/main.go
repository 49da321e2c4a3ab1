package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basegraph.app/relay/common/id"
	"basegraph.app/relay/common/logger"
	"basegraph.app/relay/common/otel"
	"basegraph.app/relay/core/config"
	"basegraph.app/relay/core/db"
	"basegraph.app/relay/internal/cliinvoker"
	"basegraph.app/relay/internal/cliexec"
	"basegraph.app/relay/internal/feedback"
	httprouter "basegraph.app/relay/internal/http/router"
	"basegraph.app/relay/internal/http/middleware"
	"basegraph.app/relay/internal/queue"
	"basegraph.app/relay/internal/runner"
	"basegraph.app/relay/internal/scheduler"
	"basegraph.app/relay/internal/store"
	"basegraph.app/relay/internal/workspace"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// main runs the combined HTTP-ingress + in-process-scheduler process: one
// binary accepting job/spec requests and dispatching them itself. A
// dedicated cmd/scheduler binary exists for operators who want dispatch
// pulled out onto its own host.
func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeAPI)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses the OTel provider in production).
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected")

	stores := store.NewStores(database.Queries())

	wake := queue.NewWakeSignal(redisClient)
	status := queue.NewStatusPublisher(redisClient, "agent-jobs:status")

	wsManager := workspace.NewManager(workspace.Config{
		ReposDir:      cfg.ReposDir,
		WorktreesDir:  cfg.WorktreesDir,
		Runner:        cliexec.ExecCommandRunner{},
		HostingCLIBin: cfg.HostingCLIBin,
		GitLabToken:   cfg.GitLabToken,
		GitLabBaseURL: cfg.GitLabBaseURL,
	})

	invoker := cliinvoker.New(cfg.CoderCLIBin, cfg.CoderCLIModel)
	feedbackRunner := feedback.New(cliexec.ExecCommandRunner{}, cfg.FeedbackTimeout)

	deps := runner.Deps{
		Stores:    stores,
		Workspace: wsManager,
		Invoker:   invoker,
		Feedback:  feedbackRunner,
		Wake:      wake,
		CLIModel:  cfg.CoderCLIModel,
	}
	router := runner.NewRouter(deps)

	sched := scheduler.New(scheduler.Config{
		Stores:        stores,
		Router:        router,
		Canceller:     invoker,
		MaxConcurrent: cfg.MaxConcurrentJobs,
		Wake:          wake.Subscribe(ctx),
	})

	if err := sched.Recover(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to recover interrupted jobs", "error", err)
		os.Exit(1)
	}

	schedCtx, cancelSched := context.WithCancel(ctx)
	go func() {
		if err := sched.Run(schedCtx); err != nil && err != context.Canceled {
			slog.ErrorContext(schedCtx, "scheduler stopped", "error", err)
		}
	}()
	_ = status // reserved for wiring job-lifecycle status events from runners in a future pass

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ginEngine := setupRouter(cfg, stores, sched, wake)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	cancelSched()
	sched.Stop()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, stores *store.Stores, sched *scheduler.Scheduler, wake *queue.WakeSignal) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span -> Recovery catches panics -> Logger logs with trace context.
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, stores, sched, wake, cfg.MaxConcurrentJobs, httprouter.RouterConfig{
		BearerSecret: cfg.BearerToken,
	})

	return router
}

const banner = `
██████╗ ███████╗██╗      █████╗ ██╗   ██╗    ███████╗███████╗██████╗ ██╗   ██╗███████╗██████╗
██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝    ██╔════╝██╔════╝██╔══██╗██║   ██║██╔════╝██╔══██╗
██████╔╝█████╗  ██║     ███████║ ╚████╔╝     ███████╗█████╗  ██████╔╝██║   ██║█████╗  ██████╔╝
██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝      ╚════██║██╔══╝  ██╔══██╗╚██╗ ██╔╝██╔══╝  ██╔══██╗
██║  ██║███████╗███████╗██║  ██║   ██║       ███████║███████╗██║  ██║ ╚████╔╝ ███████╗██║  ██║
╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝       ╚══════╝╚══════╝╚═╝  ╚═╝  ╚═══╝  ╚══════╝╚═╝  ╚═╝
`
