package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gridbase/gridbase/internal/config"
	"github.com/gridbase/gridbase/internal/events"
	logpkg "github.com/gridbase/gridbase/internal/logger"
	"github.com/gridbase/gridbase/internal/metrics"
	"github.com/gridbase/gridbase/internal/repository/memory"
	redisrepo "github.com/gridbase/gridbase/internal/repository/redis"
	chiTransport "github.com/gridbase/gridbase/internal/transport/chi"
	collectionuc "github.com/gridbase/gridbase/internal/usecase/collection"
	queryuc "github.com/gridbase/gridbase/internal/usecase/query"
	relationuc "github.com/gridbase/gridbase/internal/usecase/relation"
)

const storageReadinessTimeout = 30 * time.Second

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting gridbase API server",
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	metrics.Register()

	// Storage repositories by driver.
	var (
		collRepo collectionuc.CollectionRepository
		recRepo  collectionuc.RecordRepository
		viewRepo collectionuc.ViewRepository
		relRepo  relationuc.RelationRepository
		edgeRepo relationuc.EdgeRepository
		pinger   chiTransport.Pinger
	)
	switch cfg.Database.Driver {
	case "memory":
		store := memory.New()
		collRepo, recRepo, viewRepo = store.Collections, store.Records, store.Views
		relRepo, edgeRepo = store.Relations, store.Edges
	case "redis":
		client, err := redisrepo.NewClient(redisrepo.Config{
			Addrs:     cfg.Database.Addrs,
			Password:  cfg.Database.Password,
			KeyPrefix: cfg.Database.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("failed to create redis client", zap.Error(err))
		}
		defer client.Close()

		if err := client.WaitForReady(context.Background(), storageReadinessTimeout); err != nil {
			logger.Fatal("storage not ready", zap.Error(err))
		}
		logger.Info("connected to redis")

		store := redisrepo.NewStore(client)
		collRepo, recRepo, viewRepo = store.Collections, store.Records, store.Views
		relRepo, edgeRepo = store.Relations, store.Edges
		pinger = client
	default:
		logger.Fatal("unknown database driver", zap.String("driver", cfg.Database.Driver))
	}

	emitter := events.Log{Logger: logger}

	// Services — the query service doubles as the collection service's
	// cache invalidator, the relation service as its delete guard.
	cache := queryuc.NewCache(cfg.Engine.QueryCacheTTL())
	querySvc := queryuc.NewService(collRepo, recRepo, cache, emitter, logger, cfg.Engine)
	relSvc := relationuc.NewService(relRepo, edgeRepo, collRepo, recRepo, emitter, logger, cfg.Engine)
	collSvc := collectionuc.NewService(
		collRepo, recRepo, viewRepo, nil, relSvc, querySvc, emitter, logger, cfg.Engine)

	server := chiTransport.NewServer(collSvc, querySvc, relSvc, logger)
	if pinger != nil {
		server = server.WithPinger(pinger)
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	logger.Info("server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a
// plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and
// propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWith(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
