package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
)

const envPrefix = "CONTENTSDK"

// LoadConfig loads the configuration from file, environment variables and defaults.
// An empty path searches ./contentsdk.yaml and $HOME/.contentsdk/contentsdk.yaml.
func LoadConfig(path string) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrInvalidConfig("failed to read config file").WithCause(err)
		}
	}
	return decode(v)
}

// Watch re-reads the config file whenever it changes and hands the new,
// validated configuration to fn. Invalid intermediate edits are skipped.
func Watch(path string, fn func(*Config)) (*Config, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.ErrInvalidConfig("failed to read config file").WithCause(err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if next, err := decode(v); err == nil {
			fn(next)
		}
	})
	v.WatchConfig()
	return cfg, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("contentsdk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.contentsdk")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", constants.DefaultBaseURL)
	v.SetDefault("api.token_url", constants.DefaultTokenURL)
	v.SetDefault("api.revoke_url", constants.DefaultRevokeURL)
	v.SetDefault("api.timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("api.max_retries", constants.DefaultMaxRetries)

	v.SetDefault("session.entity_type", string(constants.EntityTypeEnterprise))
	v.SetDefault("session.expired_buffer", constants.DefaultExpiredBuffer)
	v.SetDefault("session.stale_buffer", constants.DefaultStaleBuffer)

	v.SetDefault("feed.retry_delay", constants.DefaultRetryDelay)
	v.SetDefault("feed.dedup_filter_size", constants.DefaultDeduplicationFilterSize)
	v.SetDefault("feed.fetch_interval", constants.DefaultFetchInterval)
	v.SetDefault("feed.fetch_limit", constants.DefaultFetchLimit)

	v.SetDefault("token_store.driver", "none")
	v.SetDefault("vault.mount_path", "secret")

	v.SetDefault("sink.type", "stdout")
	v.SetDefault("sink.kafka.batch_size", 100)
	v.SetDefault("sink.kafka.required_acks", -1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.listen_addr", ":9464")
	v.SetDefault("tracing.service_name", "contentsdk")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidConfig("failed to unmarshal config").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
