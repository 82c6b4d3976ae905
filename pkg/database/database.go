package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookreview/pkg/config"
	"bookreview/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects with retries, applies pool settings and migrates the schema.
func Open(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	log.Info("connecting to database", slog.String("driver", cfg.Driver), slog.String("host", cfg.Host))

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var db *gorm.DB
	for i := 0; i < retries; i++ {
		db, err = gorm.Open(dialector, gormConfig())
		if err == nil {
			break
		}
		log.Warn("database connection attempt failed",
			slog.Int("attempt", i+1), slog.Int("max", retries), slog.Any("error", err))
		if i < retries-1 {
			select {
			case <-time.After(cfg.ConnectBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := configure(db, cfg); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := Ping(ctx, db); err != nil {
		return nil, err
	}

	log.Info("database connection established")
	return db, nil
}

// OpenInMemory returns a migrated SQLite database held on a single
// connection, so every goroutine sees the same data.
func OpenInMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	if err := configure(db, config.DBConfig{MaxOpenConns: 1, MaxIdleConns: 1}); err != nil {
		return nil, err
	}
	// SQLite leaves foreign keys off unless asked; Postgres always enforces them.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// Surfaces unique violations as gorm.ErrDuplicatedKey on every driver.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
}

func configure(db *gorm.DB, cfg config.DBConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return nil
}
