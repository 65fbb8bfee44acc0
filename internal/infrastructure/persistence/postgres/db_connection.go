// Package postgres opens the SQL database backing the token store. Postgres is
// the production driver; sqlite serves local runs and tests.
package postgres

import (
	"context"
	"fmt"
	"time"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	maxOpenConns    = 10
	maxIdleConns    = 2
	maxConnLifetime = time.Hour
	pingTimeout     = 5 * time.Second
)

// OpenDB opens dsn with driver and verifies the connection.
func OpenDB(ctx context.Context, driver, dsn string, log logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if dsn == "" {
		return nil, errors.ErrInvalidConfig("token_store.dsn is required for sql drivers")
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = gormpostgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("unsupported sql driver %q", driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		log.Error(ctx, "Failed to open database", err, logger.String("driver", driver))
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access %s connection pool: %w", driver, err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(maxConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		log.Error(ctx, "Database ping failed", err, logger.String("driver", driver))
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	log.Info(ctx, "Database connection established", logger.String("driver", driver))
	return db, nil
}

// Close closes the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
