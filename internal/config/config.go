package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "MARBLE"

// Config is a typed view of the settings after Load.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Redis   RedisConfig
	Seat    SeatConfig
	Client  ClientConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

type RedisConfig struct {
	Enabled     bool
	Addr        string
	DB          int
	SnapshotTTL time.Duration
}

type SeatConfig struct {
	TokenTTL time.Duration
}

type MetricsConfig struct {
	Enabled  bool
	Stdout   bool
	Endpoint string
	Insecure bool
	Interval time.Duration
}

type ClientConfig struct {
	URL           string
	SnapshotEvery int
}

func setDefaults() {
	viper.SetDefault("server.port", 3001)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.outbox_size", 32)
	viper.SetDefault("server.ping_interval", "30s")
	viper.SetDefault("server.write_timeout", "5s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.snapshot_ttl", "2h")

	viper.SetDefault("seat.token_ttl", "2h")

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.stdout", true)
	viper.SetDefault("metrics.endpoint", "")
	viper.SetDefault("metrics.insecure", false)
	viper.SetDefault("metrics.interval", "30s")

	viper.SetDefault("client.url", "ws://localhost:3001/ws")
	viper.SetDefault("client.snapshot_every", 3)
}

// Load sets defaults, reads marble.yaml from configDir when present and binds
// MARBLE_* environment variables (server.port -> MARBLE_SERVER_PORT).
// An empty configDir skips the file.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configDir == "" {
		return nil
	}
	viper.SetConfigName("marble")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %v", err)
	}
	return nil
}

// Get returns the current settings.
func Get() Config {
	return Config{
		Server: ServerConfig{
			Port:           viper.GetInt("server.port"),
			AllowedOrigins: viper.GetStringSlice("server.allowed_origins"),
			OutboxSize:     viper.GetInt("server.outbox_size"),
			PingInterval:   viper.GetDuration("server.ping_interval"),
			WriteTimeout:   viper.GetDuration("server.write_timeout"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Redis: RedisConfig{
			Enabled:     viper.GetBool("redis.enabled"),
			Addr:        viper.GetString("redis.addr"),
			DB:          viper.GetInt("redis.db"),
			SnapshotTTL: viper.GetDuration("redis.snapshot_ttl"),
		},
		Seat: SeatConfig{TokenTTL: viper.GetDuration("seat.token_ttl")},
		Client: ClientConfig{
			URL:           viper.GetString("client.url"),
			SnapshotEvery: viper.GetInt("client.snapshot_every"),
		},
		Metrics: MetricsConfig{
			Enabled:  viper.GetBool("metrics.enabled"),
			Stdout:   viper.GetBool("metrics.stdout"),
			Endpoint: viper.GetString("metrics.endpoint"),
			Insecure: viper.GetBool("metrics.insecure"),
			Interval: viper.GetDuration("metrics.interval"),
		},
	}
}

// Addr is the listen address for the relay.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(c LogConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
