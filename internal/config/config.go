package config

import (
	"fmt"
	"time"

	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
)

// Config holds the SDK's configuration.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	App        AppConfig        `mapstructure:"app"`
	Session    SessionConfig    `mapstructure:"session"`
	Feed       FeedConfig       `mapstructure:"feed"`
	TokenStore TokenStoreConfig `mapstructure:"token_store"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	TokenURL   string        `mapstructure:"token_url"`
	RevokeURL  string        `mapstructure:"revoke_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// AppConfig identifies the JWT application. The signing key comes from
// PrivateKeyPath or, when VaultKeyPath is set, from Vault.
type AppConfig struct {
	ClientID             string `mapstructure:"client_id"`
	ClientSecret         string `mapstructure:"client_secret"`
	PublicKeyID          string `mapstructure:"public_key_id"`
	PrivateKeyPath       string `mapstructure:"private_key_path"`
	PrivateKeyPassphrase string `mapstructure:"private_key_passphrase"`
	VaultKeyPath         string `mapstructure:"vault_key_path"`
}

type SessionConfig struct {
	EntityType    string        `mapstructure:"entity_type"`
	EntityID      string        `mapstructure:"entity_id"`
	ExpiredBuffer time.Duration `mapstructure:"expired_buffer"`
	StaleBuffer   time.Duration `mapstructure:"stale_buffer"`
}

type FeedConfig struct {
	StreamPosition          string        `mapstructure:"stream_position"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	DeduplicationFilterSize int           `mapstructure:"dedup_filter_size"`
	FetchInterval           time.Duration `mapstructure:"fetch_interval"`
	FetchLimit              int           `mapstructure:"fetch_limit"`
}

type TokenStoreConfig struct {
	// Driver is one of none, memory, redis, postgres or sqlite.
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Key    string      `mapstructure:"key"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
}

type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
}

type SinkConfig struct {
	// Type is stdout or kafka.
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	// SigningKey, when set, adds an HMAC-SHA256 signature header to every message.
	SigningKey string `mapstructure:"signing_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.ErrInvalidConfig("api.base_url is required")
	}
	if et := constants.EntityType(c.Session.EntityType); c.Session.EntityType != "" && !et.IsValid() {
		return errors.ErrInvalidConfig(fmt.Sprintf("session.entity_type %q is not enterprise or user", c.Session.EntityType))
	}
	if c.Session.ExpiredBuffer < 0 || c.Session.StaleBuffer < 0 {
		return errors.ErrInvalidConfig("session buffers must not be negative")
	}
	if c.Feed.DeduplicationFilterSize < 0 {
		return errors.ErrInvalidConfig("feed.dedup_filter_size must not be negative")
	}
	switch c.TokenStore.Driver {
	case "", "none", "memory", "redis", "postgres", "sqlite":
	default:
		return errors.ErrInvalidConfig(fmt.Sprintf("token_store.driver %q is not supported", c.TokenStore.Driver))
	}
	switch c.Sink.Type {
	case "", "stdout":
	case "kafka":
		if len(c.Sink.Kafka.Brokers) == 0 || c.Sink.Kafka.Topic == "" {
			return errors.ErrInvalidConfig("sink.kafka requires brokers and topic")
		}
	default:
		return errors.ErrInvalidConfig(fmt.Sprintf("sink.type %q is not supported", c.Sink.Type))
	}
	return nil
}
