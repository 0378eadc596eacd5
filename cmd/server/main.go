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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/boardroom/common/id"
	"basegraph.app/boardroom/common/llm"
	"basegraph.app/boardroom/common/logger"
	"basegraph.app/boardroom/common/otel"
	"basegraph.app/boardroom/core/config"
	"basegraph.app/boardroom/core/db"
	"basegraph.app/boardroom/internal/agent"
	"basegraph.app/boardroom/internal/http/middleware"
	httprouter "basegraph.app/boardroom/internal/http/router"
	"basegraph.app/boardroom/internal/orchestrator"
	"basegraph.app/boardroom/internal/queue"
	"basegraph.app/boardroom/internal/service"
	"basegraph.app/boardroom/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
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

	slog.InfoContext(ctx, "boardroom starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	var database *db.DB
	if cfg.DB.Enabled() {
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		slog.InfoContext(ctx, "database connected")
	}

	archive, err := openArchive(ctx, cfg, database)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open archive", "error", err)
		os.Exit(1)
	}
	if archive != nil {
		defer archive.Close()
	}

	managerCfg := orchestrator.ManagerConfig{
		CallTimeoutFloor:    cfg.Orchestrator.CallTimeoutFloor,
		CallTimeoutOverride: cfg.Orchestrator.CallTimeoutOverride,
		MaxParallel:         cfg.Orchestrator.RoundMaxParallel,
		Retention:           cfg.Orchestrator.Retention,
		SweepInterval:       cfg.Orchestrator.SweepInterval,
	}

	var cache store.SnapshotCache
	if cfg.Pipeline.Enabled() {
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

		producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
		cache = store.NewRedisSnapshotCache(redisClient, cfg.Pipeline.SnapshotTTL)

		managerCfg.Archiver = queue.NewStreamArchiver(producer)
		managerCfg.Publisher = cache
	} else if archive != nil {
		// Without a stream the server writes the archive itself.
		managerCfg.Archiver = archive
	}

	managerCfg.Responder, err = newResponder(cfg.AgentLLM)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create agent responder", "error", err)
		os.Exit(1)
	}

	if cfg.Orchestrator.BriefingPath != "" {
		book, err := agent.LoadBriefingBook(cfg.Orchestrator.BriefingPath, 0)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load briefing book", "error", err)
			os.Exit(1)
		}
		managerCfg.Context = book
		slog.InfoContext(ctx, "briefing book loaded", "path", cfg.Orchestrator.BriefingPath)
	}

	manager := orchestrator.NewManager(managerCfg)
	services := service.NewServices(manager, cache, archive)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
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

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Running discussions stop before their next round and are archived.
	if err := manager.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "orchestrator shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

// openArchive prefers Postgres and falls back to the embedded SQLite file.
// It returns nil when neither is configured.
func openArchive(ctx context.Context, cfg config.Config, database *db.DB) (store.DiscussionArchive, error) {
	switch {
	case database != nil:
		return store.NewPostgresArchive(ctx, database)
	case cfg.Archive.Enabled():
		return store.NewSQLiteArchive(cfg.Archive.SQLitePath)
	default:
		slog.WarnContext(ctx, "no archive configured, terminal discussions are kept in memory only")
		return nil, nil
	}
}

func newResponder(cfg config.LLMConfig) (agent.Responder, error) {
	if !cfg.Enabled() {
		slog.Info("agent LLM not configured, using simulated responder")
		return agent.SimulatedResponder{Delay: 500 * time.Millisecond}, nil
	}

	client, err := llm.New(llm.Config{
		Provider:  cfg.Provider,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("agent LLM configured", "provider", cfg.Provider, "model", client.Model())
	return agent.NewLLMResponder(client, cfg.Temperature), nil
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services)

	return router
}

const banner = `
 ____                      _
| __ )  ___   __ _ _ __ __| |_ __ ___   ___  _ __ ___
|  _ \ / _ \ / _' | '__/ _' | '__/ _ \ / _ \| '_ ' _ \
| |_) | (_) | (_| | | | (_| | | | (_) | (_) | | | | | |
|____/ \___/ \__,_|_|  \__,_|_|  \___/ \___/|_| |_| |_|
`
