package service

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/turtacn/contentsdk/internal/domain/models"
	"github.com/turtacn/contentsdk/pkg/constants"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestOptions tunes a single HTTPClient call.
type RequestOptions struct {
	// Query is merged into the URL's existing query string. Keys already present are replaced,
	// all other parameters of the URL are preserved.
	Query url.Values
	// Form is sent as an application/x-www-form-urlencoded body on Post.
	Form   url.Values
	Header http.Header
	// Timeout bounds the call. Zero means the client default.
	Timeout time.Duration
}

//go:generate mockery --name HTTPClient --output mocks --outpkg mocks
// HTTPClient is the transport capability used by the event feed and the grantor.
// Implementations return a classified SDKError for any non-2xx status: 401 is
// KindAuthExpired, every other failure is KindTransport. When a response was
// received it is returned alongside the error so callers can inspect the body.
// HTTPClient 是事件流和授权器使用的传输能力。
type HTTPClient interface {
	Get(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error)
	Options(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error)
	Post(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error)
}

//go:generate mockery --name TokenGrantor --output mocks --outpkg mocks
// TokenGrantor performs the OAuth 2.0 grants a TokenSession depends on.
// TokenGrantor 执行 TokenSession 所依赖的 OAuth 2.0 授权。
type TokenGrantor interface {
	// GetTokensJWTGrant obtains a new token for the entity with a signed JWT assertion.
	GetTokensJWTGrant(ctx context.Context, entityType constants.EntityType, entityID string, opts models.TokenRequestOptions) (*models.TokenInfo, error)

	// IsAccessTokenValid reports whether the token is usable for at least buffer longer.
	IsAccessTokenValid(token *models.TokenInfo, buffer time.Duration) bool

	// RevokeTokens invalidates accessToken at the authorization server.
	RevokeTokens(ctx context.Context, accessToken string, opts models.TokenRequestOptions) error

	// ExchangeToken trades accessToken for a downscoped token limited to scopes and, optionally, resource.
	ExchangeToken(ctx context.Context, accessToken string, scopes []string, resource string, opts models.TokenRequestOptions) (*models.TokenInfo, error)
}

//go:generate mockery --name TokenStore --output mocks --outpkg mocks
// TokenStore persists one session's token outside the process.
// Read returns (nil, nil) when nothing is stored.
type TokenStore interface {
	Read(ctx context.Context) (*models.TokenInfo, error)
	Write(ctx context.Context, token *models.TokenInfo) error
	Clear(ctx context.Context) error
}

// EventSink receives batches of events drained from a feed.
type EventSink interface {
	Publish(ctx context.Context, events []models.Event) error
	Close() error
}

// KeySource supplies the PEM-encoded private key used to sign JWT assertions.
type KeySource interface {
	PrivateKeyPEM(ctx context.Context) ([]byte, error)
}
