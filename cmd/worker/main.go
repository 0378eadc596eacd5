package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/boardroom/common/id"
	"basegraph.app/boardroom/common/logger"
	"basegraph.app/boardroom/common/otel"
	"basegraph.app/boardroom/core/config"
	"basegraph.app/boardroom/core/db"
	"basegraph.app/boardroom/internal/queue"
	"basegraph.app/boardroom/internal/store"
	"basegraph.app/boardroom/internal/worker"
)

const maxAttempts = 3

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger.Setup(cfg)

	slog.InfoContext(ctx, "boardroom worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	var archive store.DiscussionArchive
	switch {
	case cfg.DB.Enabled():
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		archive, err = store.NewPostgresArchive(ctx, database)
		if err != nil {
			slog.ErrorContext(ctx, "failed to prepare postgres archive", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "database connected")
	case cfg.Archive.Enabled():
		archive, err = store.NewSQLiteArchive(cfg.Archive.SQLitePath)
		if err != nil {
			slog.ErrorContext(ctx, "failed to open sqlite archive", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "sqlite archive opened", "path", cfg.Archive.SQLitePath)
	default:
		slog.ErrorContext(ctx, "worker needs DATABASE_URL or ARCHIVE_SQLITE_PATH")
		os.Exit(1)
	}
	defer archive.Close()

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
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
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  maxAttempts,
		RequeueDelay: time.Second,
		ReclaimIdle:  5 * time.Minute,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, archive, worker.Config{MaxAttempts: maxAttempts})
	reclaimer := worker.NewReclaimer(consumer, w, time.Minute)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Reclaimer first; it may hand work to the worker.
	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 ____                      _                                         _
| __ )  ___   __ _ _ __ __| |_ __ ___   ___  _ __ ___   __      _____  _ __| | _____ _ __
|  _ \ / _ \ / _' | '__/ _' | '__/ _ \ / _ \| '_ ' _ \  \ \ /\ / / _ \| '__| |/ / _ \ '__|
| |_) | (_) | (_| | | | (_| | | | (_) | (_) | | | | | |  \ V  V / (_) | |  |   <  __/ |
|____/ \___/ \__,_|_|  \__,_|_|  \___/ \___/|_| |_| |_|   \_/\_/ \___/|_|  |_|\_\___|_|
`
