package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Lidorpahima/AiTripPlanner-sub000/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidProviders returns the accepted suggestion providers.
func ValidProviders() []string {
	return []string{ProviderRemote, ProviderGemini}
}

// ValidLogLevels returns the accepted log levels.
func ValidLogLevels() []string {
	return []string{logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError}
}

// Validate checks the Config and returns every problem found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Value: c.Server.Addr, Message: "must not be empty"})
	}
	if u, err := url.Parse(c.API.BaseURL); c.API.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "api.base_url", Value: c.API.BaseURL, Message: "must be an absolute URL"})
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"api.timeout", c.API.Timeout},
		{"auth.access_ttl", c.Auth.AccessTTL},
		{"auth.refresh_ttl", c.Auth.RefreshTTL},
		{"session.trip_cache_ttl", c.Session.TripCacheTTL},
		{"session.idle_ttl", c.Session.IdleTTL},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, ValidationError{Field: d.field, Value: d.value, Message: "must be positive"})
		}
	}

	if !slices.Contains(ValidProviders(), c.Suggestions.Provider) {
		errs = append(errs, ValidationError{
			Field:   "suggestions.provider",
			Value:   c.Suggestions.Provider,
			Message: fmt.Sprintf("must be one of %v", ValidProviders()),
		})
	}
	if c.Suggestions.Provider == ProviderGemini && c.Gemini.APIKey == "" {
		errs = append(errs, ValidationError{Field: "gemini.api_key", Value: "", Message: "required when suggestions.provider is gemini"})
	}
	if c.Mongo.URI != "" && (c.Mongo.Database == "" || c.Mongo.Collection == "") {
		errs = append(errs, ValidationError{Field: "mongo", Value: c.Mongo.Database + "/" + c.Mongo.Collection, Message: "database and collection are required when uri is set"})
	}
	if logging.ParseLevel(c.Log.Level) != strings.ToUpper(c.Log.Level) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: fmt.Sprintf("must be one of %v", ValidLogLevels()),
		})
	}
	return errs
}
