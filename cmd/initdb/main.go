// Command initdb prepares the users schema without starting the HTTP server.
//
//	initdb           wait for the database, then run an additive sync
//	initdb -force    drop and recreate the users table (also FORCE_SYNC=true)
//	initdb -check    wait for the database and report how many users exist
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"user-service/internal/bootstrap"
	"user-service/internal/config"
	"user-service/internal/logging"
	"user-service/internal/repository"
	"user-service/migrations"
)

func main() {
	force := flag.Bool("force", false, "drop and recreate all tables")
	check := flag.Bool("check", false, "only verify the connection and count users")
	flag.Parse()

	if err := run(*force, *check); err != nil {
		log.Error().Err(err).Msg("Database initialization failed")
		os.Exit(1)
	}
}

func run(force, check bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(os.Stdout, cfg.Environment, cfg.LogLevel)

	log.Info().Msgf("Database: %s at %s:%d", cfg.DatabaseName, cfg.DatabaseHost, cfg.DatabasePort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repository.NewUserRepository(db)
	boot := bootstrap.New(repo, cfg.DBMaxRetries, cfg.DBRetryBaseDelay)

	if check {
		if err := boot.RetryConnect(ctx); err != nil {
			return err
		}
		n, err := repo.Count(ctx)
		if err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		log.Info().Msgf("Found %d user(s)", n)
		return nil
	}

	mode := migrations.ModeFor(force || cfg.ForceSync)
	if mode == migrations.Destructive {
		log.Warn().Msg("Force sync mode enabled")
	}
	if err := boot.Run(ctx, mode); err != nil {
		return err
	}

	log.Info().Msg("Database initialization completed successfully")
	return nil
}
