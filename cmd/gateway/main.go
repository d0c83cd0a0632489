package main

import (
	"fmt"
	"os"

	"ledgersync/internal/config"
	"ledgersync/internal/database"
	"ledgersync/internal/identity"
	"ledgersync/internal/logger"
	"ledgersync/internal/remote"
	"ledgersync/internal/remote/memory"
	"ledgersync/internal/remote/postgres"
	"ledgersync/internal/router"
)

func main() {
	logger.InitWithOptions(os.Getenv("ENV"), logger.Options{File: os.Getenv("LOG_FILE")})
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStore(appConfig)
	if err != nil {
		return err
	}

	tokens := identity.NewTokens(appConfig.JWTSecret, appConfig.JWTExpirationDur)
	engine := router.New(store, tokens)

	log.Infof("Starting ledgersync gateway on port %s (backend %s)", appConfig.Port, appConfig.RemoteBackend)
	return engine.Run(":" + appConfig.Port)
}

// openStore returns the authoritative store the gateway fronts. The http
// backend would point the gateway at itself, so it is refused.
func openStore(cfg *config.Config) (remote.Store, error) {
	switch cfg.RemoteBackend {
	case config.BackendMemory:
		logger.Get().Warn("Serving an in-memory store; documents are lost on restart")
		return memory.New(), nil
	case config.BackendPostgres:
		dbManager, err := database.NewManager(cfg.PostgresDSN(), cfg.PostgresURL())
		if err != nil {
			return nil, fmt.Errorf("failed to create database manager: %w", err)
		}
		if err := dbManager.RunMigrations(); err != nil {
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		return postgres.New(dbManager.DB(), dbManager.DSN()), nil
	default:
		return nil, fmt.Errorf("gateway cannot serve REMOTE_BACKEND %q: use memory or postgres", cfg.RemoteBackend)
	}
}
