package tokenstore

import (
	"context"
	"fmt"

	"github.com/turtacn/contentsdk/internal/config"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/contentsdk/internal/infrastructure/persistence/redis"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// DefaultKey names the stored token of one session.
func DefaultKey(entityType constants.EntityType, entityID string) string {
	return fmt.Sprintf("contentsdk:token:%s:%s", entityType, entityID)
}

// CloseFunc releases the resources behind a store.
type CloseFunc func() error

func noClose() error { return nil }

// Open builds the store selected by cfg.Driver. The "none" driver (or an empty
// one) returns a nil store, which sessions treat as memory-only.
func Open(ctx context.Context, cfg config.TokenStoreConfig, key string, log logger.Logger) (domainService.TokenStore, CloseFunc, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if cfg.Key != "" {
		key = cfg.Key
	}

	switch cfg.Driver {
	case "", "none":
		return nil, noClose, nil
	case "memory":
		return NewMemoryStore(NewMemoryCache(), key), noClose, nil
	case "redis":
		conn := redis.NewRedisConnection(cfg.Redis, log)
		if err := conn.Connect(ctx); err != nil {
			return nil, nil, errors.ErrStore("connect", err)
		}
		return NewRedisStore(conn.GetClient(), key), conn.Close, nil
	case postgres.DriverPostgres, postgres.DriverSQLite:
		db, err := postgres.OpenDB(ctx, cfg.Driver, cfg.DSN, log)
		if err != nil {
			return nil, nil, errors.ErrStore("connect", err)
		}
		store, err := NewSQLStore(ctx, db, key)
		if err != nil {
			_ = postgres.Close(db)
			return nil, nil, errors.ErrStore("migrate", err)
		}
		return store, func() error { return postgres.Close(db) }, nil
	default:
		return nil, nil, errors.ErrInvalidConfig(fmt.Sprintf("token_store.driver %q is not supported", cfg.Driver))
	}
}
