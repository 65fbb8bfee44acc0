package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/contentsdk/internal/domain/service"
)

// MockHTTPClient is a mock implementation of service.HTTPClient
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Get(ctx context.Context, rawURL string, opts service.RequestOptions) (*service.Response, error) {
	args := m.Called(ctx, rawURL, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Response), args.Error(1)
}

func (m *MockHTTPClient) Options(ctx context.Context, rawURL string, opts service.RequestOptions) (*service.Response, error) {
	args := m.Called(ctx, rawURL, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Response), args.Error(1)
}

func (m *MockHTTPClient) Post(ctx context.Context, rawURL string, opts service.RequestOptions) (*service.Response, error) {
	args := m.Called(ctx, rawURL, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Response), args.Error(1)
}
