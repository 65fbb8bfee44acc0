// Package tokenstore provides TokenStore implementations backed by Redis,
// a SQL database through GORM, and process memory.
package tokenstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/clock"
)

// RedisStore keeps the token as JSON under a single key. The key expires with the token.
// RedisStore 以 JSON 形式将令牌保存在单个键下，键随令牌过期。
type RedisStore struct {
	client redis.Cmdable
	key    string
	clock  clock.Clock
}

var _ domainService.TokenStore = (*RedisStore)(nil)

// NewRedisStore creates a store writing to key.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	return &RedisStore{client: client, key: key, clock: clock.Real()}
}

func (s *RedisStore) Read(ctx context.Context) (*models.TokenInfo, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var token models.TokenInfo
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode token at %s: %w", s.key, err)
	}
	return &token, nil
}

func (s *RedisStore) Write(ctx context.Context, token *models.TokenInfo) error {
	ttl := token.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return s.client.Del(ctx, s.key).Err()
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, ttl.Round(time.Second)+time.Second).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
