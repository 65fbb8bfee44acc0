package transport

import (
	"context"
	"net/http"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
)

// TokenSource is the part of a TokenSession the authenticated client needs.
type TokenSource interface {
	GetAccessToken(ctx context.Context, opts models.TokenRequestOptions) (string, error)
	HandleRejectedToken(ctx context.Context, rejected string, cause error) error
}

// AuthenticatedClient signs every request with a bearer token from a TokenSource.
// When the API answers 401 the session is told its token expired and the request
// is sent once more with a fresh token.
type AuthenticatedClient struct {
	base      domainService.HTTPClient
	tokens    TokenSource
	tokenOpts models.TokenRequestOptions
}

// NewAuthenticatedClient binds base to tokens.
func NewAuthenticatedClient(base domainService.HTTPClient, tokens TokenSource, tokenOpts models.TokenRequestOptions) *AuthenticatedClient {
	return &AuthenticatedClient{base: base, tokens: tokens, tokenOpts: tokenOpts}
}

func (c *AuthenticatedClient) Get(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return c.do(ctx, c.base.Get, rawURL, opts)
}

func (c *AuthenticatedClient) Options(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return c.do(ctx, c.base.Options, rawURL, opts)
}

func (c *AuthenticatedClient) Post(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return c.do(ctx, c.base.Post, rawURL, opts)
}

type callFunc func(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error)

func (c *AuthenticatedClient) do(ctx context.Context, call callFunc, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.GetAccessToken(ctx, c.tokenOpts)
		if err != nil {
			return nil, err
		}

		signed := opts
		signed.Header = opts.Header.Clone()
		if signed.Header == nil {
			signed.Header = make(http.Header)
		}
		signed.Header.Set(constants.HeaderAuthorization, "Bearer "+token)

		resp, err := call(ctx, rawURL, signed)
		if err == nil || !errors.IsAuthExpired(err) {
			return resp, err
		}

		handled := c.tokens.HandleRejectedToken(ctx, token, err)
		if attempt > 0 || handled != err {
			return resp, handled
		}
	}
}
