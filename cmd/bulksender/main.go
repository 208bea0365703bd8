package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"bulksender/internal/api"
	"bulksender/internal/cache"
	"bulksender/internal/config"
	"bulksender/internal/engine"
	"bulksender/internal/gateway"
	"bulksender/internal/repo"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		panic(err)
	}

	log := newLogger(cfg.Log)
	log.Info().
		Str("addr", cfg.Server.Address).
		Bool("redis", cfg.Redis.Enabled).
		Int("global_rate", cfg.Engine.GlobalRatePerSec).
		Msg("bulksender starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open postgres")
	}
	defer db.Close()

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("ping postgres")
	}
	if err := repo.Bootstrap(bootCtx, db); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	var snapshots cache.OperationCache = cache.Noop{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(bootCtx).Err(); err != nil {
			log.Fatal().Err(err).Msg("ping redis")
		}
		defer rdb.Close()
		snapshots = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	var limiter *rate.Limiter
	if cfg.Engine.GlobalRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Engine.GlobalRatePerSec), cfg.Engine.GlobalBurst)
	}

	gw := gateway.NewHTTPClient(cfg.Gateway.URL, cfg.Gateway.Token, cfg.Gateway.Timeout)
	pool := engine.NewWorkerPool(gw, limiter, log)
	eng := engine.New(
		repo.NewPostgresOperationRepo(db),
		repo.NewPostgresDispatchRepo(db),
		pool,
		snapshots,
		log,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.Router(api.NewHandler(eng)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Address).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	// Lets in-flight operation runs finish their current batch.
	eng.Close()
	log.Info().Msg("bye")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
