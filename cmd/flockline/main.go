package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/flockline/flockline/internal/api"
	"github.com/flockline/flockline/internal/cache"
	"github.com/flockline/flockline/internal/channel"
	"github.com/flockline/flockline/internal/config"
	"github.com/flockline/flockline/internal/database"
	"github.com/flockline/flockline/internal/repo"
	"github.com/flockline/flockline/internal/scheduler"
	"github.com/flockline/flockline/internal/service"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.MigrateUp(cfg.Database.MigrationsDir, cfg.Database.PostgresURL); err != nil {
		return err
	}

	pool, err := database.Connect(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenants := repo.NewPostgresTenantRepo(pool)
	participants := repo.NewPostgresParticipantRepo(pool)
	conversations := repo.NewPostgresConversationRepo(pool)
	messages := repo.NewPostgresMessageRepo(pool)
	queueItems := repo.NewPostgresQueueRepo(pool)
	audit := repo.NewPostgresAuditRepo(pool)

	var dedupe cache.DedupeCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()
		dedupe = cache.NewRedisDedupe(rdb, cfg.Redis.TTL)
		slog.Info("redis dedupe cache enabled", "addr", cfg.Redis.Address)
	}

	sender := channel.NewWebhookClient(cfg.Channel.WebhookURL)

	tracker := service.NewTracker(conversations)
	queue := service.NewQueue(queueItems, messages, sender)
	responder := service.NewResponder(participants)
	pipeline := service.NewPipeline(participants, messages, audit, queue, responder, sender, dedupe)

	sched, err := scheduler.New(cfg.Sweep.Interval, func(ctx context.Context) (int64, error) {
		list, err := tenants.List(ctx)
		if err != nil {
			return 0, err
		}
		var total int64
		for _, t := range list {
			n, err := tracker.SweepInactive(ctx, t.ID, cfg.Sweep.InactiveAfter)
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(tenants, messages, audit, tracker, queue, pipeline, sched, channel.StaticDirectory{})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
