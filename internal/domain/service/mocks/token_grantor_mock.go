package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/pkg/constants"
)

// MockTokenGrantor is a mock implementation of service.TokenGrantor
type MockTokenGrantor struct {
	mock.Mock
}

func (m *MockTokenGrantor) GetTokensJWTGrant(ctx context.Context, entityType constants.EntityType, entityID string, opts models.TokenRequestOptions) (*models.TokenInfo, error) {
	args := m.Called(ctx, entityType, entityID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenInfo), args.Error(1)
}

func (m *MockTokenGrantor) IsAccessTokenValid(token *models.TokenInfo, buffer time.Duration) bool {
	args := m.Called(token, buffer)
	return args.Bool(0)
}

func (m *MockTokenGrantor) RevokeTokens(ctx context.Context, accessToken string, opts models.TokenRequestOptions) error {
	args := m.Called(ctx, accessToken, opts)
	return args.Error(0)
}

func (m *MockTokenGrantor) ExchangeToken(ctx context.Context, accessToken string, scopes []string, resource string, opts models.TokenRequestOptions) (*models.TokenInfo, error) {
	args := m.Called(ctx, accessToken, scopes, resource, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenInfo), args.Error(1)
}
