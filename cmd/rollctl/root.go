package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"rollcall/internal/app"
	"rollcall/internal/cleanup"
	"rollcall/internal/config"
	"rollcall/internal/recognition"
	"rollcall/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "rollctl",
	Short: "Maintenance commands for the rollcall attendance service",
	Long: `rollctl talks to the same Postgres database and scratch directories as the
api server. Configuration is read from .env, CONFIG_FILE and the environment.`,
	SilenceUsage: true,
}

// env is what every subcommand needs; close releases it.
type env struct {
	cfg    config.App
	db     *store.DB
	logger *log.Logger
	close  func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return &env{
		cfg:    cfg,
		db:     db,
		logger: log.New(os.Stderr, "rollctl: ", log.LstdFlags),
		close:  func() { _ = db.Close() },
	}, nil
}

// pipeline builds the recognition service. File deletions run in-process and
// are flushed by the returned func.
func (e *env) pipeline(ctx context.Context) (*recognition.Service, func(), error) {
	ex, closeExtractor, err := app.NewExtractor(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, nil, err
	}
	m, err := app.NewMedia(e.cfg)
	if err != nil {
		closeExtractor()
		return nil, nil, err
	}
	sched := cleanup.NewInMemory(cleanup.NewDeleter(e.logger))
	svc, err := app.NewPipeline(e.cfg, e.db, ex, m, sched, e.logger)
	if err != nil {
		closeExtractor()
		return nil, nil, err
	}
	return svc, func() {
		sched.Flush()
		closeExtractor()
	}, nil
}
