package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRIPPLANNER_API_BASE_URL.
const EnvPrefix = "TRIPPLANNER"

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	API         APIConfig         `mapstructure:"api"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Session     SessionConfig     `mapstructure:"session"`
	Suggestions SuggestionsConfig `mapstructure:"suggestions"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
	Mongo       MongoConfig       `mapstructure:"mongo"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// APIConfig points at the remote trip planner API.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig sets token lifetimes.
type AuthConfig struct {
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

// SessionConfig controls live session caching.
type SessionConfig struct {
	// TripCacheTTL is how long the last-loaded trip snapshot is reused.
	TripCacheTTL time.Duration `mapstructure:"trip_cache_ttl"`
	// IdleTTL evicts live sessions nobody touched for this long.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// SuggestionsConfig selects the suggestion service.
// Provider is "remote" (the trip planner API) or "gemini" (direct).
type SuggestionsConfig struct {
	Provider string `mapstructure:"provider"`
}

// GeminiConfig configures the direct Gemini provider.
type GeminiConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// MongoConfig configures live plan persistence. An empty URI disables it.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Suggestion providers.
const (
	ProviderRemote = "remote"
	ProviderGemini = "gemini"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 20 * time.Second,
		},
		Auth: AuthConfig{
			AccessTTL:  7 * 24 * time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Session: SessionConfig{
			TripCacheTTL: 5 * time.Minute,
			IdleTTL:      2 * time.Hour,
		},
		Suggestions: SuggestionsConfig{Provider: ProviderRemote},
		Gemini:      GeminiConfig{Model: "gemini-2.5-flash-lite"},
		Mongo: MongoConfig{
			Database:   "tripplanner",
			Collection: "live_plans",
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// SetDefaults registers every default on v so env overrides resolve.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)

	v.SetDefault("auth.access_ttl", d.Auth.AccessTTL)
	v.SetDefault("auth.refresh_ttl", d.Auth.RefreshTTL)

	v.SetDefault("session.trip_cache_ttl", d.Session.TripCacheTTL)
	v.SetDefault("session.idle_ttl", d.Session.IdleTTL)

	v.SetDefault("suggestions.provider", d.Suggestions.Provider)
	v.SetDefault("gemini.model", d.Gemini.Model)
	v.SetDefault("gemini.api_key", "")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", d.Mongo.Database)
	v.SetDefault("mongo.collection", d.Mongo.Collection)

	v.SetDefault("log.level", d.Log.Level)
}

// Load reads the configuration. An empty path searches for tripplanner.yaml
// in the working directory and ConfigDir(); a missing file there is fine.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tripplanner")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini.api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the user's config directory for the service.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tripplanner")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tripplanner"
	}
	return filepath.Join(home, ".config", "tripplanner")
}
