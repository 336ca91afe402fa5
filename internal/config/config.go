package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix          = "GRIDDECK"
	defaultHTTPAddress = "0.0.0.0:8080"
	defaultSessionPath = "griddeck.db"
	defaultLogLevel    = "info"
	defaultContextKey  = "dashboard"
)

// AppConfig captures runtime configuration for the console API server.
type AppConfig struct {
	HTTPAddress    string
	SessionDBPath  string
	SessionContext string
	PostgresURL    string
	LogLevel       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("session.path", defaultSessionPath)
	configViper.SetDefault("session.context", defaultContextKey)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper. The Postgres URL is optional;
// without it the server runs with the draft store only and disables the
// metadata and submission endpoints.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		SessionDBPath:  configViper.GetString("session.path"),
		SessionContext: configViper.GetString("session.context"),
		PostgresURL:    configViper.GetString("postgres.url"),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.SessionDBPath) == "" {
		return fmt.Errorf("session.path is required")
	}
	if strings.TrimSpace(c.SessionContext) == "" {
		return fmt.Errorf("session.context is required")
	}
	return nil
}
