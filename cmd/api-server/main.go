package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-scheduling-core/internal/api"
	"github.com/hackgods/appointment-scheduling-core/internal/appointment"
	"github.com/hackgods/appointment-scheduling-core/internal/config"
	"github.com/hackgods/appointment-scheduling-core/internal/db"
	"github.com/hackgods/appointment-scheduling-core/internal/lock"
	"github.com/hackgods/appointment-scheduling-core/internal/logging"
	"github.com/hackgods/appointment-scheduling-core/internal/metrics"
	redisclient "github.com/hackgods/appointment-scheduling-core/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Str("lock", cfg.LockBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	roster, err := config.LoadRoster(cfg.DoctorsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load doctors roster")
	}

	defaults, err := appointment.DefaultProfile(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid default doctor profile")
	}
	doctors, err := appointment.NewDirectory(roster, defaults)
	if err != nil {
		logger.Fatal().Err(err).Msg("build doctor directory")
	}
	logger.Info().Int("doctors", len(doctors.Doctors())).Msg("doctor roster loaded")

	var (
		pgPool *pgxpool.Pool
		repo   appointment.Repository
	)
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConn})
		if err == nil {
			err = db.Migrate(pgCtx, pgPool, logger)
		}
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres setup error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		repo = appointment.NewPgRepository(pgPool, cfg.LockWait)
	default:
		repo = appointment.NewMemoryRepository()
	}

	var (
		rdb    *goredis.Client
		locker lock.Locker
	)
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err = redisclient.Connect(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Msg("connected to Redis")

		locker = redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL, cfg.LockWait)
	default:
		locker = lock.NewLocalLocker(cfg.LockWait)
	}

	if cfg.MetricsEnabled {
		metrics.Register()
	}

	svc := appointment.NewService(repo, locker, doctors, appointment.PolicyFromConfig(cfg), logger)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		PgPool:         pgPool,
		Redis:          rdb,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        cfg.MetricsEnabled,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := newHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
