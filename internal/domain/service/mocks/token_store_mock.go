package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/contentsdk/internal/domain/models"
)

// MockTokenStore is a mock implementation of service.TokenStore
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Read(ctx context.Context) (*models.TokenInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenInfo), args.Error(1)
}

func (m *MockTokenStore) Write(ctx context.Context, token *models.TokenInfo) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
