package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/naka-gawa/repo-pulse/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Postgres reads metadata of the application database.
type Postgres struct {
	db             *gorm.DB
	commandTimeout time.Duration
}

// OpenPostgres opens a pool sized by cfg.
func OpenPostgres(cfg config.Postgres) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxPoolSize)
	sqlDB.SetMaxIdleConns(cfg.MinPoolSize)
	return NewPostgres(db, cfg.CommandTimeout), nil
}

// NewPostgres wraps an open gorm database.
func NewPostgres(db *gorm.DB, commandTimeout time.Duration) *Postgres {
	return &Postgres{db: db, commandTimeout: commandTimeout}
}

// Version returns the server version string reported by SELECT version().
func (p *Postgres) Version(ctx context.Context) (string, error) {
	if p.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.commandTimeout)
		defer cancel()
	}

	var version string
	result := p.db.WithContext(ctx).Raw("SELECT version() AS version").Scan(&version)
	if result.Error != nil {
		return "", fmt.Errorf("failed to query database version: %w", result.Error)
	}
	if result.RowsAffected == 0 || version == "" {
		return "", ErrVersionNotFound
	}
	return version, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
