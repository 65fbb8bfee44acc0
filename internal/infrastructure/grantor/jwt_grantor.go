// Package grantor talks to the OAuth 2.0 token endpoint: JWT bearer grants,
// token exchange and revocation.
package grantor

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/clock"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// Config identifies the application at the token endpoint.
type Config struct {
	ClientID             string
	ClientSecret         string
	PublicKeyID          string
	PrivateKeyPassphrase string
	TokenURL             string
	RevokeURL            string
}

// Option customizes a JWTGrantor.
type Option func(*JWTGrantor)

// WithClock replaces the wall clock used for assertion and expiry times.
func WithClock(c clock.Clock) Option { return func(g *JWTGrantor) { g.clock = c } }

// WithLogger sets the grantor's logger.
func WithLogger(l logger.Logger) Option { return func(g *JWTGrantor) { g.logger = l } }

// WithTracer sets the tracer used for grant spans.
func WithTracer(t trace.Tracer) Option { return func(g *JWTGrantor) { g.tracer = t } }

// JWTGrantor implements domainService.TokenGrantor with signed JWT assertions.
// JWTGrantor 使用签名的 JWT 断言实现 TokenGrantor。
type JWTGrantor struct {
	http   domainService.HTTPClient
	keys   domainService.KeySource
	cfg    Config
	clock  clock.Clock
	logger logger.Logger
	tracer trace.Tracer

	keyMu sync.Mutex
	key   *rsa.PrivateKey
}

var _ domainService.TokenGrantor = (*JWTGrantor)(nil)

// NewJWTGrantor creates a grantor. The HTTP client must be unauthenticated.
func NewJWTGrantor(httpClient domainService.HTTPClient, keys domainService.KeySource, cfg Config, opts ...Option) (*JWTGrantor, error) {
	if httpClient == nil || keys == nil {
		return nil, errors.ErrInvalidConfig("grantor requires an http client and a key source")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.ErrInvalidConfig("client_id and client_secret are required")
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = constants.DefaultTokenURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = constants.DefaultRevokeURL
	}
	g := &JWTGrantor{
		http:   httpClient,
		keys:   keys,
		cfg:    cfg,
		clock:  clock.Real(),
		logger: logger.NewNoopLogger(),
		tracer: otel.Tracer("github.com/turtacn/contentsdk/grantor"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent("JWTGrantor")
	return g, nil
}

// GetTokensJWTGrant exchanges a signed assertion for an access token. When the
// endpoint rejects the assertion's exp claim the grant is retried once with the
// server's Date header as the current time.
func (g *JWTGrantor) GetTokensJWTGrant(ctx context.Context, entityType constants.EntityType, entityID string, opts models.TokenRequestOptions) (*models.TokenInfo, error) {
	ctx, span := g.tracer.Start(ctx, "JWTGrantor.GetTokensJWTGrant",
		trace.WithAttributes(attribute.String("entity.type", string(entityType))))
	defer span.End()

	if !entityType.IsValid() || entityID == "" {
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("invalid grant subject %s/%q", entityType, entityID))
	}
	key, err := g.signingKey(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp, err := g.requestGrant(ctx, key, entityType, entityID, g.clock.Now(), opts)
	if err != nil {
		if serverNow, ok := skewedAssertion(resp); ok {
			g.logger.Warn(ctx, "assertion rejected for exp claim, retrying with server time",
				logger.Time("server_time", serverNow))
			resp, err = g.requestGrant(ctx, key, entityType, entityID, serverNow, opts)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grant failed")
		return nil, grantError(resp, err)
	}
	return g.decodeToken(resp, nil)
}

// IsAccessTokenValid reports whether token stays usable for buffer longer.
func (g *JWTGrantor) IsAccessTokenValid(token *models.TokenInfo, buffer time.Duration) bool {
	return token.ValidAt(g.clock.Now(), buffer)
}

// RevokeTokens invalidates accessToken at the revocation endpoint.
func (g *JWTGrantor) RevokeTokens(ctx context.Context, accessToken string, opts models.TokenRequestOptions) error {
	ctx, span := g.tracer.Start(ctx, "JWTGrantor.RevokeTokens")
	defer span.End()

	form := url.Values{
		"client_id":     {g.cfg.ClientID},
		"client_secret": {g.cfg.ClientSecret},
		"token":         {accessToken},
	}
	if _, err := g.http.Post(ctx, g.cfg.RevokeURL, domainService.RequestOptions{Form: form, Header: forwardedFor(opts)}); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ExchangeToken downscopes accessToken to scopes and, when set, resource.
func (g *JWTGrantor) ExchangeToken(ctx context.Context, accessToken string, scopes []string, resource string, opts models.TokenRequestOptions) (*models.TokenInfo, error) {
	ctx, span := g.tracer.Start(ctx, "JWTGrantor.ExchangeToken")
	defer span.End()

	form := url.Values{
		"grant_type":         {string(constants.GrantTypeTokenExchange)},
		"subject_token":      {accessToken},
		"subject_token_type": {string(constants.TokenTypeAccess)},
		"scope":              {strings.Join(scopes, " ")},
	}
	if resource != "" {
		form.Set("resource", resource)
	}
	resp, err := g.http.Post(ctx, g.cfg.TokenURL, domainService.RequestOptions{Form: form, Header: forwardedFor(opts)})
	if err != nil {
		span.RecordError(err)
		return nil, grantError(resp, err)
	}
	return g.decodeToken(resp, scopes)
}

func (g *JWTGrantor) requestGrant(ctx context.Context, key *rsa.PrivateKey, entityType constants.EntityType, entityID string, now time.Time, opts models.TokenRequestOptions) (*domainService.Response, error) {
	assertion, err := g.assertion(key, entityType, entityID, now)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"grant_type":    {string(constants.GrantTypeJWT)},
		"client_id":     {g.cfg.ClientID},
		"client_secret": {g.cfg.ClientSecret},
		"assertion":     {assertion},
	}
	return g.http.Post(ctx, g.cfg.TokenURL, domainService.RequestOptions{Form: form, Header: forwardedFor(opts)})
}

func (g *JWTGrantor) assertion(key *rsa.PrivateKey, entityType constants.EntityType, entityID string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss":          g.cfg.ClientID,
		"sub":          entityID,
		"box_sub_type": string(entityType),
		"aud":          g.cfg.TokenURL,
		"jti":          uuid.NewString(),
		"exp":          now.Add(constants.AssertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.cfg.PublicKeyID != "" {
		token.Header["kid"] = g.cfg.PublicKeyID
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", errors.ErrInvalidConfig("failed to sign jwt assertion").WithCause(err)
	}
	return signed, nil
}

func (g *JWTGrantor) signingKey(ctx context.Context) (*rsa.PrivateKey, error) {
	g.keyMu.Lock()
	defer g.keyMu.Unlock()
	if g.key != nil {
		return g.key, nil
	}
	pemBytes, err := g.keys.PrivateKeyPEM(ctx)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(pemBytes, g.cfg.PrivateKeyPassphrase)
	if err != nil {
		return nil, err
	}
	g.key = key
	return key, nil
}

func (g *JWTGrantor) decodeToken(resp *domainService.Response, scopes []string) (*models.TokenInfo, error) {
	var body models.TokenResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, errors.ErrMalformedResponse("token endpoint returned invalid json").WithCause(err)
	}
	if body.AccessToken == "" || body.ExpiresIn <= 0 {
		return nil, errors.ErrMalformedResponse("token endpoint response lacks access_token or expires_in")
	}
	return body.ToTokenInfo(g.clock.Now(), scopes), nil
}

// oauthError is the token endpoint's error body.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseOAuthError(resp *domainService.Response) (oauthError, bool) {
	var body oauthError
	if resp == nil || (resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized) {
		return body, false
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Error == "" {
		return body, false
	}
	return body, true
}

// grantError turns a rejected grant into KindAuthExpired and leaves everything else alone.
func grantError(resp *domainService.Response, err error) error {
	body, ok := parseOAuthError(resp)
	if !ok || body.Error != "invalid_grant" {
		return err
	}
	msg := body.ErrorDescription
	if msg == "" {
		msg = body.Error
	}
	return errors.ErrInvalidGrant(msg, resp.StatusCode).WithCause(err)
}

// skewedAssertion reports whether the endpoint rejected the exp claim, and the
// server's time from the Date header.
func skewedAssertion(resp *domainService.Response) (time.Time, bool) {
	body, ok := parseOAuthError(resp)
	if !ok || body.Error != "invalid_grant" || !strings.Contains(body.ErrorDescription, "exp") {
		return time.Time{}, false
	}
	serverNow, err := http.ParseTime(resp.Header.Get("Date"))
	if err != nil {
		return time.Time{}, false
	}
	return serverNow, true
}

func forwardedFor(opts models.TokenRequestOptions) http.Header {
	if opts.IP == "" {
		return nil
	}
	return http.Header{constants.HeaderForwardedFor: {opts.IP}}
}
