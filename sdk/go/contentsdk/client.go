// Package contentsdk is the public entry point of the SDK. New wires the
// transport, JWT grantor, token session and token store from a Config; the
// resulting Client hands out an authenticated HTTP client and event feeds.
package contentsdk

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	appService "github.com/turtacn/contentsdk/internal/application/service"
	"github.com/turtacn/contentsdk/internal/config"
	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/internal/infrastructure/grantor"
	"github.com/turtacn/contentsdk/internal/infrastructure/kms"
	"github.com/turtacn/contentsdk/internal/infrastructure/monitoring"
	"github.com/turtacn/contentsdk/internal/infrastructure/tokenstore"
	"github.com/turtacn/contentsdk/internal/infrastructure/transport"
	"github.com/turtacn/contentsdk/pkg/clock"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// Re-exported types so callers need not import internal packages.
type (
	Config              = config.Config
	Event               = models.Event
	EventFeed           = appService.EventFeed
	FeedOptions         = appService.FeedOptions
	StreamPosition      = models.StreamPosition
	TokenInfo           = models.TokenInfo
	TokenRequestOptions = models.TokenRequestOptions
	TokenSession        = domainService.TokenSession
	Logger              = logger.Logger
)

// LoadConfig reads configuration from path, CONTENTSDK_* variables and defaults.
func LoadConfig(path string) (*Config, error) { return config.LoadConfig(path) }

// Option customizes New.
type Option func(*options)

type options struct {
	logger   logger.Logger
	keys     domainService.KeySource
	store    any
	storeSet bool
	registry *prometheus.Registry
	clock    clock.Clock
}

// WithLogger replaces the zap logger built from cfg.Log.
func WithLogger(l logger.Logger) Option { return func(o *options) { o.logger = l } }

// WithKeySource supplies the signing key instead of cfg.App or Vault.
func WithKeySource(k domainService.KeySource) Option { return func(o *options) { o.keys = k } }

// WithPrivateKeyPEM supplies the signing key from memory.
func WithPrivateKeyPEM(pem []byte) Option {
	return func(o *options) { o.keys = kms.StaticKeySource(pem) }
}

// WithTokenStore uses store instead of cfg.TokenStore. store must provide
// Read, Write and Clear; nil disables persistence.
func WithTokenStore(store any) Option {
	return func(o *options) { o.store, o.storeSet = store, true }
}

// WithRegistry registers SDK metrics with reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(o *options) { o.registry = reg } }

// WithClock overrides the clock of the session and of feeds created by the client.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// Client bundles the collaborators for one enterprise or user.
type Client struct {
	cfg      *Config
	log      logger.Logger
	clock    clock.Clock
	registry *prometheus.Registry
	metrics  domainService.Metrics
	tracing  *monitoring.TracingManager
	session  *domainService.TokenSession
	api      *transport.AuthenticatedClient
	longPoll *appService.LongPollClient

	closeOnce sync.Once
	closers   []func() error
}

// New builds a Client for the entity named in cfg.Session.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidConfig("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{cfg: cfg, clock: o.clock, registry: o.registry}
	if err := c.init(ctx, &o); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) init(ctx context.Context, o *options) error {
	c.log = o.logger
	if c.log == nil {
		zl, err := monitoring.NewZapLogger(c.cfg.Log, nil)
		if err != nil {
			return errors.ErrInvalidConfig("invalid log configuration").WithCause(err)
		}
		c.log = zl
		c.closers = append(c.closers, func() error { _ = zl.Sync(); return nil })
	}

	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
	}
	c.metrics = monitoring.NewMetricsAdapter(monitoring.NewMetrics(c.registry))

	tracing, err := monitoring.NewTracingManager(c.cfg.Tracing, c.log)
	if err != nil {
		return err
	}
	c.tracing = tracing
	c.closers = append(c.closers, func() error { return tracing.Shutdown(context.Background()) })

	keys, err := c.keySource(o)
	if err != nil {
		return err
	}

	base := transport.NewClient(transport.Config{
		Timeout:    c.cfg.API.Timeout,
		MaxRetries: c.cfg.API.MaxRetries,
	}, c.log, c.metrics)

	g, err := grantor.NewJWTGrantor(base, keys, grantor.Config{
		ClientID:             c.cfg.App.ClientID,
		ClientSecret:         c.cfg.App.ClientSecret,
		PublicKeyID:          c.cfg.App.PublicKeyID,
		PrivateKeyPassphrase: c.cfg.App.PrivateKeyPassphrase,
		TokenURL:             c.cfg.API.TokenURL,
		RevokeURL:            c.cfg.API.RevokeURL,
	}, grantor.WithClock(c.clock), grantor.WithLogger(c.log))
	if err != nil {
		return err
	}

	entityType := constants.EntityType(c.cfg.Session.EntityType)
	store, err := c.tokenStore(ctx, o, entityType)
	if err != nil {
		return err
	}

	c.session, err = domainService.NewTokenSession(entityType, c.cfg.Session.EntityID, g, store,
		domainService.SessionConfig{
			ExpiredBuffer: c.cfg.Session.ExpiredBuffer,
			StaleBuffer:   c.cfg.Session.StaleBuffer,
		},
		domainService.WithSessionClock(c.clock),
		domainService.WithSessionLogger(c.log),
		domainService.WithSessionMetrics(c.metrics),
	)
	if err != nil {
		return err
	}

	c.api = transport.NewAuthenticatedClient(base, c.session, models.TokenRequestOptions{})
	c.longPoll = appService.NewLongPollClient(c.api, c.cfg.API.BaseURL, c.log, c.metrics)
	return nil
}

func (c *Client) keySource(o *options) (domainService.KeySource, error) {
	switch {
	case o.keys != nil:
		return o.keys, nil
	case c.cfg.App.VaultKeyPath != "":
		vc, err := kms.NewVaultClient(c.cfg.Vault.Address, c.cfg.Vault.Token)
		if err != nil {
			return nil, err
		}
		return kms.NewVaultKeySource(vc, c.cfg.Vault.MountPath, c.cfg.App.VaultKeyPath, c.log), nil
	case c.cfg.App.PrivateKeyPath != "":
		return kms.NewFileKeySource(c.cfg.App.PrivateKeyPath), nil
	default:
		return nil, errors.ErrInvalidConfig("no signing key: set app.private_key_path or app.vault_key_path").
			WithCause(errors.ErrNoPrivateKey)
	}
}

func (c *Client) tokenStore(ctx context.Context, o *options, entityType constants.EntityType) (domainService.TokenStore, error) {
	if o.storeSet {
		return domainService.WrapTokenStore(o.store)
	}
	store, closeFn, err := tokenstore.Open(ctx, c.cfg.TokenStore, tokenstore.DefaultKey(entityType, c.cfg.Session.EntityID), c.log)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeFn)
	return store, nil
}

// Session returns the token session shared by every request of this client.
func (c *Client) Session() *TokenSession { return c.session }

// HTTPClient returns a client that signs requests with the session's token.
func (c *Client) HTTPClient() domainService.HTTPClient { return c.api }

// Logger returns the client's logger.
func (c *Client) Logger() Logger { return c.log }

// Registry returns the Prometheus registry holding the SDK metrics.
func (c *Client) Registry() *prometheus.Registry { return c.registry }

// AccessToken returns a valid access token, refreshing it when needed.
func (c *Client) AccessToken(ctx context.Context, opts TokenRequestOptions) (string, error) {
	return c.session.GetAccessToken(ctx, opts)
}

// RevokeTokens revokes the current token and clears the token store.
func (c *Client) RevokeTokens(ctx context.Context, opts TokenRequestOptions) error {
	return c.session.RevokeTokens(ctx, opts)
}

// ExchangeToken returns a token downscoped to scopes and, optionally, resource.
func (c *Client) ExchangeToken(ctx context.Context, scopes []string, resource string, opts TokenRequestOptions) (*TokenInfo, error) {
	return c.session.ExchangeToken(ctx, scopes, resource, opts)
}

// NewEventFeed creates a feed at position, or at cfg.Feed.StreamPosition when
// position is empty. The caller must Destroy it.
func (c *Client) NewEventFeed(position StreamPosition) *EventFeed {
	if position == "" {
		position = StreamPosition(c.cfg.Feed.StreamPosition)
	}
	return appService.NewEventFeed(c.longPoll, position, FeedOptions{
		RetryDelay:              c.cfg.Feed.RetryDelay,
		DeduplicationFilterSize: c.cfg.Feed.DeduplicationFilterSize,
		FetchInterval:           c.cfg.Feed.FetchInterval,
		FetchLimit:              c.cfg.Feed.FetchLimit,
	},
		appService.WithFeedClock(c.clock),
		appService.WithFeedLogger(c.log),
		appService.WithFeedMetrics(c.metrics),
	)
}

// Close releases the token store and flushes traces and logs.
func (c *Client) Close() error {
	var first error
	c.closeOnce.Do(func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i](); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
