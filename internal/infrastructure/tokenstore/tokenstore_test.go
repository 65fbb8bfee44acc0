package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
)

func sampleToken() *models.TokenInfo {
	return &models.TokenInfo{
		AccessToken:   "T1",
		RefreshToken:  "R1",
		ExpiresAt:     time.Now().Add(time.Hour).Truncate(time.Second).UTC(),
		GrantedScopes: []string{"item_preview", "item_upload"},
		RestrictedTo:  json.RawMessage(`[{"scope":"item_preview"}]`),
		TokenType:     constants.TokenTypeBearer,
	}
}

// runStoreContract exercises the behaviour every TokenStore shares.
func runStoreContract(t *testing.T, store domainService.TokenStore) {
	ctx := context.Background()

	t.Run("empty read", func(t *testing.T) {
		got, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("write then read", func(t *testing.T) {
		want := sampleToken()
		require.NoError(t, store.Write(ctx, want))

		got, err := store.Read(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.AccessToken, got.AccessToken)
		assert.Equal(t, want.RefreshToken, got.RefreshToken)
		assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", want.ExpiresAt, got.ExpiresAt)
		assert.Equal(t, want.GrantedScopes, got.GrantedScopes)
		assert.JSONEq(t, string(want.RestrictedTo), string(got.RestrictedTo))
		assert.Equal(t, want.TokenType, got.TokenType)
	})

	t.Run("overwrite", func(t *testing.T) {
		next := sampleToken()
		next.AccessToken = "T2"
		require.NoError(t, store.Write(ctx, next))

		got, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, "T2", got.AccessToken)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		got, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
		require.NoError(t, store.Clear(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore(NewMemoryCache(), "k"))
}

func TestMemoryStore_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	a := NewMemoryStore(c, "a")
	b := NewMemoryStore(c, "b")

	require.NoError(t, a.Write(ctx, sampleToken()))
	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	runStoreContract(t, NewRedisStore(client, "contentsdk:token:enterprise:1"))
}

func TestRedisStore_KeyExpiresWithToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "k")
	token := sampleToken()
	token.ExpiresAt = time.Now().Add(10 * time.Minute)
	require.NoError(t, store.Write(context.Background(), token))

	ttl := mr.TTL("k")
	assert.Greater(t, ttl, 9*time.Minute)
	assert.LessOrEqual(t, ttl, 11*time.Minute)

	mr.FastForward(11 * time.Minute)
	got, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_ExpiredTokenIsNotWritten(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "k")
	token := sampleToken()
	token.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Write(context.Background(), token))
	assert.False(t, mr.Exists("k"))
}

func TestRedisStore_ErrorsSurface(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewRedisStore(client, "k")

	mr.SetError("READONLY")
	_, err := store.Read(context.Background())
	assert.Error(t, err)
	assert.Error(t, store.Write(context.Background(), sampleToken()))
}

func sqliteDSN(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	db, err := postgres.OpenDB(ctx, postgres.DriverSQLite, sqliteDSN(t), nil)
	require.NoError(t, err)
	defer postgres.Close(db)

	store, err := NewSQLStore(ctx, db, "contentsdk:token:user:42")
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestSQLStore_KeysShareTable(t *testing.T) {
	ctx := context.Background()
	db, err := postgres.OpenDB(ctx, postgres.DriverSQLite, sqliteDSN(t), nil)
	require.NoError(t, err)
	defer postgres.Close(db)

	a, err := NewSQLStore(ctx, db, "a")
	require.NoError(t, err)
	b, err := NewSQLStore(ctx, db, "b")
	require.NoError(t, err)

	require.NoError(t, a.Write(ctx, sampleToken()))
	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, b.Clear(ctx))
	got, err = a.Read(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		store, closeFn, err := Open(ctx, config.TokenStoreConfig{Driver: "none"}, "k", nil)
		require.NoError(t, err)
		assert.Nil(t, store)
		assert.NoError(t, closeFn())
	})

	t.Run("memory", func(t *testing.T) {
		store, _, err := Open(ctx, config.TokenStoreConfig{Driver: "memory"}, "k", nil)
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.TokenStoreConfig{Driver: "redis", Key: "custom", Redis: config.RedisConfig{Addresses: []string{mr.Addr()}}}
		store, closeFn, err := Open(ctx, cfg, "ignored", nil)
		require.NoError(t, err)
		defer closeFn()

		require.NoError(t, store.Write(ctx, sampleToken()))
		assert.True(t, mr.Exists("custom"))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		cfg := config.TokenStoreConfig{Driver: "redis", Redis: config.RedisConfig{Addresses: []string{"127.0.0.1:1"}}}
		_, _, err := Open(ctx, cfg, "k", nil)
		require.Error(t, err)
		assert.True(t, errors.IsStore(err))
	})

	t.Run("sqlite", func(t *testing.T) {
		store, closeFn, err := Open(ctx, config.TokenStoreConfig{Driver: "sqlite", DSN: sqliteDSN(t)}, "k", nil)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &SQLStore{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := Open(ctx, config.TokenStoreConfig{Driver: "etcd"}, "k", nil)
		assert.Error(t, err)
	})
}

func TestDefaultKey(t *testing.T) {
	assert.Equal(t, "contentsdk:token:enterprise:123", DefaultKey(constants.EntityTypeEnterprise, "123"))
}
