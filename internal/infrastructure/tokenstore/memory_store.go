package tokenstore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/clock"
)

// MemoryStore shares a token between sessions of one process. Several stores
// may share a cache as long as their keys differ.
type MemoryStore struct {
	cache *cache.Cache
	key   string
	clock clock.Clock
}

var _ domainService.TokenStore = (*MemoryStore)(nil)

// NewMemoryCache creates a cache suitable for NewMemoryStore.
func NewMemoryCache() *cache.Cache {
	return cache.New(cache.NoExpiration, 10*time.Minute)
}

// NewMemoryStore creates a store for key in c.
func NewMemoryStore(c *cache.Cache, key string) *MemoryStore {
	return &MemoryStore{cache: c, key: key, clock: clock.Real()}
}

func (s *MemoryStore) Read(ctx context.Context) (*models.TokenInfo, error) {
	v, found := s.cache.Get(s.key)
	if !found {
		return nil, nil
	}
	return v.(*models.TokenInfo), nil
}

func (s *MemoryStore) Write(ctx context.Context, token *models.TokenInfo) error {
	ttl := token.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		s.cache.Delete(s.key)
		return nil
	}
	s.cache.Set(s.key, token, ttl)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.cache.Delete(s.key)
	return nil
}
