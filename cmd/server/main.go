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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hongminglow/store-rating-be/internal/auth"
	"github.com/hongminglow/store-rating-be/internal/cache"
	"github.com/hongminglow/store-rating-be/internal/config"
	"github.com/hongminglow/store-rating-be/internal/notify"
	"github.com/hongminglow/store-rating-be/internal/server"
	"github.com/hongminglow/store-rating-be/internal/service"
	"github.com/hongminglow/store-rating-be/internal/storage/postgres"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancelInit := context.WithTimeout(ctx, 15*time.Second)
	store, err := postgres.New(initCtx, cfg.DatabaseURL)
	cancelInit()
	if err != nil {
		log.Error("init database", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	kv, events, closeRedis := setupRealtime(ctx, cfg, log)
	defer closeRedis()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.RefreshSecret, cfg.Auth.Issuer,
		cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	authSvc := service.NewAuth(store, tokens)
	aggregates := cache.NewAggregates(kv, cfg.Cache.StoresTTL, cache.NewMetrics(reg))

	startRefreshJanitor(ctx, log, authSvc, cfg.Auth.JanitorPeriod)

	srv := server.New(cfg, server.Deps{
		Auth:    authSvc,
		Ratings: service.NewRatings(store, aggregates, events),
		Admin:   service.NewAdmin(store),
		Tokens:  tokens,
		Events:  events,
		DB:      store,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  log,
	})

	go func() {
		log.Info("store rating backend listening", slog.String("addr", cfg.HTTPAddress()), slog.String("env", cfg.Env))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error("graceful shutdown error", slog.Any("err", err))
	}
}

// realtime is the broadcaster and stream source handed to the services.
type realtime interface {
	notify.Broadcaster
	notify.Subscriber
}

// setupRealtime picks the cache store and event fan-out. With REDIS_URL set
// both go through Redis so every instance shares them; otherwise they stay in
// process.
func setupRealtime(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Store, realtime, func()) {
	hub := notify.NewHub()
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set; using in-process cache and events")
		return cache.NewMemoryStore(), hub, func() {}
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("init redis; falling back to in-process cache and events", slog.Any("err", err))
		return cache.NewMemoryStore(), hub, func() {}
	}

	bridge := notify.NewRedisBridge(rdb, cfg.Cache.EventsChannel, hub, log)
	go runBridge(ctx, log, bridge)

	return cache.NewRedisStore(rdb), bridge, func() { closeRedis(log, rdb) }
}

func runBridge(ctx context.Context, log *slog.Logger, bridge *notify.RedisBridge) {
	for {
		err := bridge.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Warn("event bridge stopped; restarting", slog.Any("err", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func closeRedis(log *slog.Logger, rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		log.Warn("close redis", slog.Any("err", err))
	}
}

func startRefreshJanitor(ctx context.Context, log *slog.Logger, authSvc *service.Auth, period time.Duration) {
	if period <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := authSvc.PurgeExpiredRefreshTokens(ctx)
				if err != nil {
					log.Warn("refresh janitor failed", slog.Any("err", err))
					continue
				}
				if n > 0 {
					log.Info("refresh janitor purged tokens", slog.Int64("count", n))
				}
			}
		}
	}()
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found; relying on existing environment")
	}
}
