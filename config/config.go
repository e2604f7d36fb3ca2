// Package config loads settings from an optional .env file, CALCRPC_*
// environment variables, and an optional calcrpc.yaml in the working
// directory, in increasing precedence of env over file.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Addr is the listen address of the server.
	Addr string `mapstructure:"addr"`
	// PoolSize is the number of concurrent handler executions.
	PoolSize int64 `mapstructure:"pool_size"`
	// MaxConns caps accepted connections; 0 means no cap.
	MaxConns int `mapstructure:"max_conns"`
	// MaxBodyLen is the largest accepted request body.
	MaxBodyLen int64 `mapstructure:"max_body_len"`
	// StreamPace is slept between factorial elements; 0 emits eagerly.
	StreamPace time.Duration `mapstructure:"stream_pace"`
	// GracePeriod bounds the shutdown drain of in-flight calls.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// ConnectTimeout bounds the connection handshake.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// ServerAddr is where clients dial.
	ServerAddr string `mapstructure:"server_addr"`
	// CallTimeout is the per-call deadline clients attach.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// Load reads the configuration. Missing .env and calcrpc.yaml are fine;
// defaults suit a local deployment (port 50051, pool of 8, 2s client
// deadline, 5s shutdown grace).
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("addr", ":50051")
	v.SetDefault("pool_size", 8)
	v.SetDefault("max_conns", 64)
	v.SetDefault("max_body_len", 1<<22)
	v.SetDefault("stream_pace", time.Duration(0))
	v.SetDefault("grace_period", 5*time.Second)
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("server_addr", "localhost:50051")
	v.SetDefault("call_timeout", 2*time.Second)

	v.SetEnvPrefix("calcrpc")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("calcrpc")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
