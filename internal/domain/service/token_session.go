package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/pkg/clock"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// SessionConfig holds the expiry margins of a TokenSession.
type SessionConfig struct {
	ExpiredBuffer time.Duration
	StaleBuffer   time.Duration
}

// SessionOption configures optional collaborators of a TokenSession.
type SessionOption func(*TokenSession)

// WithSessionClock overrides the clock used for expiry checks.
func WithSessionClock(c clock.Clock) SessionOption {
	return func(s *TokenSession) { s.clock = c }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l logger.Logger) SessionOption {
	return func(s *TokenSession) { s.log = l.WithComponent("token_session") }
}

// WithSessionMetrics sets the metrics sink.
func WithSessionMetrics(m Metrics) SessionOption {
	return func(s *TokenSession) { s.metrics = m }
}

// WithSessionTracer sets the tracer used for grant spans.
func WithSessionTracer(t trace.Tracer) SessionOption {
	return func(s *TokenSession) { s.tracer = t }
}

// TokenSession owns the token lifecycle of one enterprise or user.
// Any number of goroutines may call GetAccessToken; at most one grant runs at a time
// and every caller waiting on it observes the same result.
// TokenSession 管理一个企业或用户的令牌生命周期。
type TokenSession struct {
	entityType constants.EntityType
	entityID   string
	grantor    TokenGrantor
	store      TokenStore
	cfg        SessionConfig

	clock   clock.Clock
	log     logger.Logger
	metrics Metrics
	tracer  trace.Tracer

	mu      sync.Mutex
	current *models.TokenInfo
	refresh singleflight.Group
}

// NewTokenSession creates a session for the given entity. store may be nil.
func NewTokenSession(entityType constants.EntityType, entityID string, grantor TokenGrantor, store TokenStore, cfg SessionConfig, opts ...SessionOption) (*TokenSession, error) {
	if !entityType.IsValid() {
		return nil, errors.ErrInvalidConfig("entity type must be enterprise or user")
	}
	if entityID == "" {
		return nil, errors.ErrInvalidConfig("entity id is required")
	}
	if grantor == nil {
		return nil, errors.ErrInvalidConfig("token grantor is required")
	}
	s := &TokenSession{
		entityType: entityType,
		entityID:   entityID,
		grantor:    grantor,
		store:      store,
		cfg:        cfg,
		clock:      clock.Real(),
		log:        logger.NewNoopLogger(),
		metrics:    NewNoopMetrics(),
		tracer:     otel.Tracer("github.com/turtacn/contentsdk/session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EntityType returns the kind of entity the session acts for.
func (s *TokenSession) EntityType() constants.EntityType { return s.entityType }

// EntityID returns the id of the entity the session acts for.
func (s *TokenSession) EntityID() string { return s.entityID }

func (s *TokenSession) buffer() time.Duration {
	return max(s.cfg.ExpiredBuffer, s.cfg.StaleBuffer)
}

func (s *TokenSession) key() string {
	return string(s.entityType) + ":" + s.entityID
}

// GetAccessToken returns a bearer token valid for at least the larger of the two buffers.
// It reads through the store when nothing is cached and refreshes when the token is
// missing or inside the buffer. Grant and store errors are returned unchanged.
func (s *TokenSession) GetAccessToken(ctx context.Context, opts models.TokenRequestOptions) (string, error) {
	buffer := s.buffer()

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil && s.store != nil {
		stored, err := s.store.Read(ctx)
		s.metrics.RecordStoreOperation("read", err)
		if err != nil {
			return "", storeError("read", err)
		}
		if stored == nil || !s.grantor.IsAccessTokenValid(stored, buffer) {
			return s.refreshToken(ctx, opts)
		}
		s.mu.Lock()
		if s.current == nil {
			s.current = stored
		}
		s.mu.Unlock()
		return stored.AccessToken, nil
	}

	if current == nil || !s.grantor.IsAccessTokenValid(current, buffer) {
		return s.refreshToken(ctx, opts)
	}
	return current.AccessToken, nil
}

// refreshToken attaches to the in-flight grant or starts one. The grant runs detached
// from ctx so that one caller giving up does not fail the others.
func (s *TokenSession) refreshToken(ctx context.Context, opts models.TokenRequestOptions) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.refresh.DoChan(s.key(), func() (interface{}, error) {
		return s.grant(detached, opts)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*models.TokenInfo).AccessToken, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *TokenSession) grant(ctx context.Context, opts models.TokenRequestOptions) (*models.TokenInfo, error) {
	// A grant that finished between the caller's check and this call already replaced the token.
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != nil && s.grantor.IsAccessTokenValid(current, s.buffer()) {
		return current, nil
	}

	ctx, span := s.tracer.Start(ctx, "TokenSession.Grant", trace.WithAttributes(
		attribute.String("entity.type", string(s.entityType)),
	))
	defer span.End()

	start := s.clock.Now()
	token, err := s.grantor.GetTokensJWTGrant(ctx, s.entityType, s.entityID, opts)
	s.metrics.RecordTokenRefresh(string(s.entityType), err == nil, s.clock.Now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant failed")
		s.log.Error(ctx, "Token grant failed", err, logger.String("entity_type", string(s.entityType)))
		return nil, err
	}

	s.mu.Lock()
	s.current = token
	s.mu.Unlock()

	if s.store != nil {
		err := s.store.Write(ctx, token)
		s.metrics.RecordStoreOperation("write", err)
		if err != nil {
			span.RecordError(err)
			return nil, storeError("write", err)
		}
	}

	s.log.Debug(ctx, "Token refreshed",
		logger.String("entity_type", string(s.entityType)),
		logger.Time("expires_at", token.ExpiresAt),
	)
	return token, nil
}

// RevokeTokens drops the held token, clears the store and revokes the token at the server.
// A fresh session revokes the token persisted in the store. Nothing is revoked when
// neither memory nor the store holds a token.
func (s *TokenSession) RevokeTokens(ctx context.Context, opts models.TokenRequestOptions) error {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if s.store != nil {
		if current == nil {
			stored, err := s.store.Read(ctx)
			s.metrics.RecordStoreOperation("read", err)
			if err != nil {
				return storeError("read", err)
			}
			current = stored
		}
		err := s.store.Clear(ctx)
		s.metrics.RecordStoreOperation("clear", err)
		if err != nil {
			return storeError("clear", err)
		}
	}
	if current == nil || current.AccessToken == "" {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "TokenSession.Revoke")
	defer span.End()
	if err := s.grantor.RevokeTokens(ctx, current.AccessToken, opts); err != nil {
		span.RecordError(err)
		return err
	}
	s.log.Info(ctx, "Token revoked", logger.String("entity_type", string(s.entityType)))
	return nil
}

// ExchangeToken returns a token downscoped to scopes and, if set, to resource.
func (s *TokenSession) ExchangeToken(ctx context.Context, scopes []string, resource string, opts models.TokenRequestOptions) (*models.TokenInfo, error) {
	accessToken, err := s.GetAccessToken(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s.grantor.ExchangeToken(ctx, accessToken, scopes, resource, opts)
}

// HandleExpiredTokensError is called when the API rejected the session's token.
// It forgets the in-memory token and clears the store. The original error is
// returned, unless clearing the store fails, in which case the store error replaces it.
func (s *TokenSession) HandleExpiredTokensError(ctx context.Context, cause error) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	return s.clearAfterExpiry(ctx, cause)
}

// HandleRejectedToken is HandleExpiredTokensError for a known access token. When a
// newer token has replaced rejected in the meantime, the session keeps it and cause is
// returned as is.
func (s *TokenSession) HandleRejectedToken(ctx context.Context, rejected string, cause error) error {
	s.mu.Lock()
	if s.current != nil && s.current.AccessToken != rejected {
		s.mu.Unlock()
		return cause
	}
	s.current = nil
	s.mu.Unlock()
	return s.clearAfterExpiry(ctx, cause)
}

func (s *TokenSession) clearAfterExpiry(ctx context.Context, cause error) error {
	if s.store == nil {
		return cause
	}
	err := s.store.Clear(ctx)
	s.metrics.RecordStoreOperation("clear", err)
	if err != nil {
		s.log.Error(ctx, "Failed to clear token store after expiry", err)
		return storeError("clear", err)
	}
	return cause
}

func storeError(op string, err error) error {
	if errors.IsStore(err) {
		return err
	}
	return errors.ErrStore(op, err)
}
