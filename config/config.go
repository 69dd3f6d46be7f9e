// Package config loads listsyncd settings from defaults, an optional
// config file and LISTSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/orchestra-mcp/listsync/src/broker"
)

// Broker kinds.
const (
	BrokerRedis  = "redis"
	BrokerMemory = "memory"
)

// Config is the full server configuration.
type Config struct {
	Listen string             `mapstructure:"listen"`
	Broker string             `mapstructure:"broker"`
	Redis  broker.RedisConfig `mapstructure:"redis"`
	Socket SocketConfig       `mapstructure:"socket"`
	Auth   AuthConfig         `mapstructure:"auth"`
	Log    LogConfig          `mapstructure:"log"`
}

// AuthConfig holds credential verification settings.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ErrMissingSecret is returned when no signing secret is configured.
var ErrMissingSecret = errors.New("auth.secret is required")

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Listen: ":8080",
		Broker: BrokerRedis,
		Redis:  *broker.DefaultRedisConfig(),
		Socket: DefaultSocketConfig(),
		Auth:   AuthConfig{Issuer: "listsync"},
		Log:    LogConfig{Level: "info"},
	}
}

// setDefaults seeds v from DefaultConfig, with the REDIS_* variables
// read by broker.RedisConfigFromEnv taking precedence over the built-ins.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	d.Redis = *broker.RedisConfigFromEnv()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("broker", d.Broker)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("redis.max_retries", d.Redis.MaxRetries)
	v.SetDefault("redis.min_backoff", d.Redis.MinBackoff)
	v.SetDefault("redis.max_backoff", d.Redis.MaxBackoff)
	v.SetDefault("socket.max_connections", d.Socket.MaxConnections)
	v.SetDefault("socket.ping_interval_seconds", d.Socket.PingInterval)
	v.SetDefault("socket.write_timeout_seconds", d.Socket.WriteTimeout)
	v.SetDefault("socket.read_buffer_size", d.Socket.ReadBufferSize)
	v.SetDefault("socket.write_buffer_size", d.Socket.WriteBufferSize)
	v.SetDefault("socket.send_buffer", d.Socket.SendBuffer)
	v.SetDefault("auth.secret", d.Auth.Secret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

// Load reads configuration into v. An empty path looks for listsync.yaml
// in the working directory and /etc/listsync; a missing file is not an
// error unless path was given explicitly.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix("LISTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("listsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/listsync")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Broker = strings.ToLower(cfg.Broker)
	return cfg, cfg.Validate()
}

// Validate checks settings that have no usable default.
func (c Config) Validate() error {
	if c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	switch c.Broker {
	case BrokerRedis, BrokerMemory:
	default:
		return fmt.Errorf("unknown broker %q", c.Broker)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// LogLevel returns the parsed log level, info when unset.
func (c Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
