//go:build integration

package tokenstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/internal/infrastructure/persistence/postgres"
)

func skipWithoutDocker(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}
}

func TestSQLStore_Postgres(t *testing.T) {
	skipWithoutDocker(t)
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("contentsdk"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.OpenDB(ctx, postgres.DriverPostgres, connStr, nil)
	require.NoError(t, err)
	defer postgres.Close(db)

	store, err := NewSQLStore(ctx, db, "contentsdk:token:enterprise:1")
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestRedisStore_RealRedis(t *testing.T) {
	skipWithoutDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, container.Terminate(ctx))
	}()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, closeFn, err := Open(ctx, config.TokenStoreConfig{
		Driver: "redis",
		Redis:  config.RedisConfig{Addresses: []string{endpoint}},
	}, "contentsdk:token:user:7", nil)
	require.NoError(t, err)
	defer closeFn()

	runStoreContract(t, store)
}
