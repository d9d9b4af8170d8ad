package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"texsvg/internal/config"
	"texsvg/internal/httpapi"
	"texsvg/internal/httpapi/handlers"
	"texsvg/internal/ledger"
	"texsvg/internal/pkg/logger"
	"texsvg/internal/pkg/shutdown"
	"texsvg/internal/render"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "texsvg",
		AddSource:   cfg.LogSource,
	})

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("failed to set GOMAXPROCS", "error", err)
	}

	log.Info("starting texsvg",
		"port", cfg.Port,
		"temp_root", cfg.TempRoot,
		"timeout", cfg.CompileTimeout.String(),
	)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	var recorders []ledger.Recorder
	var stats ledger.StatsReader

	// Postgres ledger (optional)
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)

		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}
		pg := ledger.NewPostgresRecorder(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to prepare render_jobs", err)
		}
		recorders = append(recorders, pg)
		log.Info("PostgreSQL connected")
	}

	// Redis counters (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		log.Info("connecting to Redis")
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		rr := ledger.NewRedisRecorder(rdb, ledger.DefaultStatsKey)
		recorders = append(recorders, rr)
		stats = rr
		log.Info("Redis connected")
	}

	// Compiles run detached from requests and stop only once the server
	// has drained.
	renderCtx, stopRenders := context.WithCancel(ctx)
	shutdownMgr.RegisterSimple("render-jobs", stopRenders)

	svc := render.NewService(render.Options{
		Workspaces:  render.NewWorkspaces(cfg.TempRoot, log),
		Compiler:    render.NewShellCompiler(cfg.LatexPath, cfg.DvisvgmPath, cfg.CompileTimeout),
		Recorder:    ledger.Combine(recorders...),
		BaseContext: renderCtx,
		Log:         log,
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Renderer:     svc,
			Pool:         pool,
			RDB:          rdb,
			Stats:        stats,
			MaxBodyBytes: cfg.MaxBodyBytes,
			LatexPath:    cfg.LatexPath,
			DvisvgmPath:  cfg.DvisvgmPath,
			TempRoot:     cfg.TempRoot,
		},
		Log:                log,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Registered last so it drains first.
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}
