package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "CAMPUSCHAT"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultRedisAddr   = "localhost:6379"
	defaultLogLevel    = "info"
	defaultCookieName  = "campuschat_session"
)

// AppConfig captures runtime configuration for the chat server.
type AppConfig struct {
	HTTPAddress   string
	DatabaseDSN   string
	RedisAddress  string
	JWTSecret     string
	SessionCookie string
	LogLevel      string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", defaultHTTPAddress)
	v.SetDefault("redis.address", defaultRedisAddr)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("auth.cookie_name", defaultCookieName)
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   v.GetString("http.address"),
		DatabaseDSN:   v.GetString("database.dsn"),
		RedisAddress:  v.GetString("redis.address"),
		JWTSecret:     v.GetString("auth.jwt_secret"),
		SessionCookie: v.GetString("auth.cookie_name"),
		LogLevel:      v.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if strings.TrimSpace(c.SessionCookie) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	return nil
}
