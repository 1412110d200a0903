// Package postgres provides the PostgreSQL implementation of the key
// repository, built on GORM over the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crewbill/keysvc/internal/config"
	"github.com/crewbill/keysvc/internal/domain/models"
	"github.com/crewbill/keysvc/pkg/errors"
	"github.com/crewbill/keysvc/pkg/logger"
)

// NewDBConnection opens the PostgreSQL connection pool through the pgx stdlib
// driver, hands it to GORM, and migrates the signing_keys schema.
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	log.Info(ctx, "initializing PostgreSQL connection pool",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_conns", cfg.MaxConns),
	)

	sqlDB, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, errors.ErrStoreUnavailable(err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxConnLifetime) * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, errors.ErrStoreUnavailable(err)
	}

	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.ErrStoreUnavailable(err)
	}

	if err := Migrate(db.WithContext(ctx)); err != nil {
		return nil, errors.ErrStoreUnavailable(err)
	}

	return db, nil
}

// Migrate creates the signing_keys schema and the partial unique index that
// enforces at most one active key at the store level. Without the index two
// concurrent rotations from different processes could both commit an active
// record; with it the loser fails with a unique violation, which translate
// maps to a transient error and the rotation retry loop absorbs.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.SigningKey{}); err != nil {
		return err
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_signing_keys_single_active ON signing_keys (status) WHERE status = 'active'`,
	).Error
}
