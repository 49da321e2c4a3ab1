package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basegraph.app/relay/common/id"
	"basegraph.app/relay/common/logger"
	"basegraph.app/relay/common/otel"
	"basegraph.app/relay/core/config"
	"basegraph.app/relay/core/db"
	"basegraph.app/relay/internal/cliexec"
	"basegraph.app/relay/internal/cliinvoker"
	"basegraph.app/relay/internal/feedback"
	"basegraph.app/relay/internal/queue"
	"basegraph.app/relay/internal/runner"
	"basegraph.app/relay/internal/scheduler"
	"basegraph.app/relay/internal/store"
	"basegraph.app/relay/internal/workspace"
	"github.com/redis/go-redis/v9"
)

// main runs the dispatcher on its own, with no HTTP ingress: operators who
// want to scale job execution independently of the API surface run this
// binary alongside one or more cmd/server instances, all pointed at the same
// database and Redis.
func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeScheduler)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)
	slog.InfoContext(ctx, "scheduler starting", "env", cfg.Env, "max_concurrent", cfg.MaxConcurrentJobs)

	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

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

	stores := store.NewStores(database.Queries())
	wake := queue.NewWakeSignal(redisClient)

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

	router := runner.NewRouter(runner.Deps{
		Stores:    stores,
		Workspace: wsManager,
		Invoker:   invoker,
		Feedback:  feedbackRunner,
		Wake:      wake,
		CLIModel:  cfg.CoderCLIModel,
	})

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

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sched.Run(runCtx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down...")
	case err := <-done:
		if err != nil && err != context.Canceled {
			slog.ErrorContext(ctx, "scheduler exited unexpectedly", "error", err)
		}
	}

	cancel()
	sched.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 10*time.Second)
	defer cancelShutdown()
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
