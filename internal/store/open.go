package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to postgres (production) or sqlite (local development and tests).
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	cfg := &gorm.Config{TranslateError: true}
	if logger != nil {
		cfg.Logger = gormlogger.NewSlogLogger(logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
		})
	} else {
		cfg.Logger = gormlogger.Discard
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one writer at a time; shared in-memory databases need this
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return New(db), nil
}

// OpenMemory opens a private in-memory sqlite database with the schema applied.
func OpenMemory(ctx context.Context, name string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	s, err := Open(ctx, "sqlite", dsn, nil)
	if err != nil {
		return nil, err
	}
	if err := s.AutoMigrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
