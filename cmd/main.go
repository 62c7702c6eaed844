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

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"user-service/internal/api"
	"user-service/internal/bootstrap"
	"user-service/internal/config"
	"user-service/internal/logging"
	"user-service/internal/metrics"
	"user-service/internal/repository"
	"user-service/internal/service"
	"user-service/migrations"
)

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	db.SetConnMaxIdleTime(10 * time.Second)
	return db, nil
}

func main() {
	startedAt := time.Now()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(os.Stdout, cfg.Environment, cfg.LogLevel)

	log.Info().Msgf("Starting application on port %d", cfg.Port)
	log.Info().Msgf("Database: %s at %s:%d", cfg.DatabaseName, cfg.DatabaseHost, cfg.DatabasePort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database configuration")
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)

	// No traffic is accepted until the database is reachable and the schema is in sync.
	boot := bootstrap.New(userRepo, cfg.DBMaxRetries, cfg.DBRetryBaseDelay)
	log.Info().Msgf("Initializing database (FORCE_SYNC: %t)", cfg.ForceSync)
	if err := boot.Run(ctx, migrations.ModeFor(cfg.ForceSync)); err != nil {
		log.Error().Err(err).Msg("Database initialization failed")
		db.Close()
		os.Exit(1)
	}

	opts := []service.Option{service.WithObserver(metrics.Users{})}
	if rdb := config.NewRedisClient(cfg.RedisAddr); rdb != nil {
		defer rdb.Close()
		opts = append(opts, service.WithLocker(service.NewRedisLocker(rdb)))
		log.Info().Msgf("Using Redis at %s for create locks", cfg.RedisAddr)
	}
	if writer := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.UserEventsTopic); writer != nil {
		defer writer.Close()
		opts = append(opts, service.WithEvents(service.NewKafkaPublisher(writer)))
		log.Info().Msgf("Publishing user events to topic %s", cfg.UserEventsTopic)
	}

	userService := service.NewUserService(userRepo, opts...)
	userHandler := api.NewUserHandler(userService)

	e := api.NewRouter(api.RouterConfig{
		RateLimit:     cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
		DatabaseState: func() string { return boot.State().String() },
		StartedAt:     startedAt,
	}, userHandler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Server running on port %d", cfg.Port)
		log.Info().Msgf("Health check: http://localhost:%d/health", cfg.Port)
		log.Info().Msgf("API endpoints: http://localhost:%d/api/users", cfg.Port)
		errCh <- e.Start(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server stopped")
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}
}
