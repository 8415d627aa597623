package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/datastore"
	"github.com/glebarez/sqlite"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	accounts "github.com/ydns/accounts"
	"github.com/ydns/accounts/config"
	"github.com/ydns/accounts/stores/gae"
	gormstore "github.com/ydns/accounts/stores/gorm"
)

// setupLogging installs the process-wide slog handler.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

// openStore opens the configured backend. The returned closer releases the
// underlying connection.
func openStore(ctx context.Context, cfg *config.Config) (accounts.Store, io.Closer, error) {
	switch cfg.Database.Driver {
	case config.DriverDatastore:
		client, err := datastore.NewClient(ctx, cfg.Database.Project)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore: %w", err)
		}
		return gae.New(client, cfg.Database.Namespace), client, nil

	case config.DriverPostgres, config.DriverSQLite:
		db, err := openGorm(cfg)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return gormstore.New(db), sqlDB, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.Database.Driver)
}

func openGorm(cfg *config.Config) (*gorm.DB, error) {
	dialector := sqlite.Open(cfg.Database.DSN)
	if cfg.Database.Driver == config.DriverPostgres {
		dialector = pgdriver.Open(cfg.Database.DSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Database.Driver, err)
	}
	if cfg.Database.Driver == config.DriverSQLite {
		// SQLite serialises writers; a single connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}
