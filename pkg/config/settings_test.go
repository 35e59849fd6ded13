package config

import (
	"testing"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	tests := []struct {
		name      string
		source    backend.DataSourceInstanceSettings
		expectErr bool
		errMsg    string
		validate  func(t *testing.T, s *Settings)
	}{
		{
			name: "valid settings",
			source: backend.DataSourceInstanceSettings{
				URL:      "https://mirador.example.com/",
				JSONData: []byte(`{"tenantId": " acme ", "timeout": 15, "maxConcurrentQueries": 4, "rateLimit": 5, "rateBurst": 2, "defaultLogsLanguage": "bleve"}`),
				DecryptedSecureJSONData: map[string]string{
					"bearerToken": "secret-token",
				},
			},
			validate: func(t *testing.T, s *Settings) {
				assert.Equal(t, "https://mirador.example.com", s.URL)
				assert.Equal(t, "acme", s.TenantID)
				assert.Equal(t, 15*time.Second, s.Timeout())
				assert.Equal(t, 4, s.MaxConcurrentQueries)
				assert.Equal(t, 5.0, s.RateLimit)
				assert.Equal(t, 2, s.RateBurst)
				assert.Equal(t, "bleve", s.DefaultLogsLanguage)
				assert.Equal(t, "secret-token", s.Secrets.BearerToken)
			},
		},
		{
			name: "defaults applied",
			source: backend.DataSourceInstanceSettings{
				URL:      "http://localhost:8080",
				JSONData: []byte(`{}`),
			},
			validate: func(t *testing.T, s *Settings) {
				assert.Equal(t, DefaultTimeoutSeconds, s.TimeoutSeconds)
				assert.Equal(t, DefaultMaxConcurrentQueries, s.MaxConcurrentQueries)
				assert.Equal(t, DefaultRateBurst, s.RateBurst)
				assert.Equal(t, 0.0, s.RateLimit)
				assert.Equal(t, DefaultLogsLanguage, s.DefaultLogsLanguage)
				require.NotNil(t, s.Secrets)
				assert.Empty(t, s.Secrets.BearerToken)
			},
		},
		{
			name: "url from jsonData when instance url is empty",
			source: backend.DataSourceInstanceSettings{
				JSONData: []byte(`{"url": "http://mirador:8080//"}`),
			},
			validate: func(t *testing.T, s *Settings) {
				assert.Equal(t, "http://mirador:8080", s.URL)
			},
		},
		{
			name: "empty jsonData",
			source: backend.DataSourceInstanceSettings{
				URL: "http://mirador:8080",
			},
			validate: func(t *testing.T, s *Settings) {
				assert.Equal(t, "http://mirador:8080", s.URL)
			},
		},
		{
			name: "invalid JSON",
			source: backend.DataSourceInstanceSettings{
				JSONData: []byte(`invalid json`),
			},
			expectErr: true,
			errMsg:    "could not unmarshal Settings JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := LoadSettings(tt.source)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, settings)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, settings)
			tt.validate(t, settings)
		})
	}
}

func TestSettingsError(t *testing.T) {
	tests := []struct {
		name     string
		err      *SettingsError
		expected string
	}{
		{
			name: "with message and wrapped error",
			err: &SettingsError{
				Msg: "test message",
				Err: assert.AnError,
			},
			expected: "test message: assert.AnError general error for testing",
		},
		{
			name: "with wrapped error only",
			err: &SettingsError{
				Err: assert.AnError,
			},
			expected: "assert.AnError general error for testing",
		},
		{
			name: "with message only",
			err: &SettingsError{
				Msg: "test message",
			},
			expected: "test message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			if tt.err.Err != nil {
				assert.Equal(t, tt.err.Err, tt.err.Unwrap())
			} else {
				assert.Nil(t, tt.err.Unwrap())
			}
		})
	}
}
