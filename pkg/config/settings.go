// Package config provides configuration management for the Mirador Core Grafana plugin.
// It handles loading plugin settings from Grafana and filling in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
)

const (
	DefaultTimeoutSeconds       = 30
	DefaultMaxConcurrentQueries = 10
	DefaultRateBurst            = 10
	DefaultLogsLanguage         = "lucene"
)

// SettingsError represents an error specifically related to plugin settings.
type SettingsError struct {
	Msg string
	Err error // Wrapped error
}

func (e *SettingsError) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %v", e.Msg, e.Err)
		}
		return fmt.Sprintf("%v", e.Err)
	}
	return e.Msg
}

func (e *SettingsError) Unwrap() error {
	return e.Err
}

// Settings holds the configuration settings for the Mirador Core data source.
type Settings struct {
	URL                  string  `json:"url"`
	TenantID             string  `json:"tenantId"`
	TimeoutSeconds       int     `json:"timeout"`
	MaxConcurrentQueries int     `json:"maxConcurrentQueries"`
	RateLimit            float64 `json:"rateLimit"`
	RateBurst            int     `json:"rateBurst"`
	DefaultLogsLanguage  string  `json:"defaultLogsLanguage"`

	Secrets *SecretSettings `json:"-"`
}

// SecretSettings holds values stored in Grafana's secure JSON data.
type SecretSettings struct {
	BearerToken string `json:"bearerToken"`
}

// Timeout returns the per-request timeout as a duration.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// LoadSettings unmarshals the JSON data and decrypted secure JSON data
// from Grafana's DataSourceInstanceSettings into a Settings struct.
// The instance URL configured in Grafana wins over a url key in jsonData.
func LoadSettings(source backend.DataSourceInstanceSettings) (*Settings, error) {
	settings := Settings{}
	if len(source.JSONData) > 0 {
		if err := json.Unmarshal(source.JSONData, &settings); err != nil {
			return nil, &SettingsError{Msg: "could not unmarshal Settings JSON", Err: err}
		}
	}

	if source.URL != "" {
		settings.URL = source.URL
	}
	settings.URL = strings.TrimRight(strings.TrimSpace(settings.URL), "/")
	settings.TenantID = strings.TrimSpace(settings.TenantID)
	settings.DefaultLogsLanguage = strings.ToLower(strings.TrimSpace(settings.DefaultLogsLanguage))

	applyDefaults(&settings)
	settings.Secrets = loadSecretSettings(source.DecryptedSecureJSONData)

	return &settings, nil
}

func applyDefaults(s *Settings) {
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.MaxConcurrentQueries <= 0 {
		s.MaxConcurrentQueries = DefaultMaxConcurrentQueries
	}
	if s.RateBurst <= 0 {
		s.RateBurst = DefaultRateBurst
	}
	if s.RateLimit < 0 {
		s.RateLimit = 0
	}
	if s.DefaultLogsLanguage == "" {
		s.DefaultLogsLanguage = DefaultLogsLanguage
	}
}

// loadSecretSettings extracts secure data from the decrypted map.
// The bearer token is optional.
func loadSecretSettings(source map[string]string) *SecretSettings {
	return &SecretSettings{
		BearerToken: strings.TrimSpace(source["bearerToken"]),
	}
}
