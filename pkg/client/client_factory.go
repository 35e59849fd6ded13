package client

import (
	"context"

	"mirador-grafana-plugin/pkg/config"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/httpclient"
)

// ClientFactory defines an interface for creating Mirador Core clients.
// This allows for dependency injection and better testing.
type ClientFactory interface {
	CreateClient(ctx context.Context, dsSettings backend.DataSourceInstanceSettings, settings *config.Settings) (*Client, error)
}

// DefaultClientFactory builds clients on top of the SDK's HTTP client so that
// TLS, proxy and timeout options configured in Grafana apply.
type DefaultClientFactory struct{}

// newHTTPClient is a variable so tests can bypass the SDK middleware stack.
var newHTTPClient = httpclient.New

// CreateClient implements the ClientFactory interface.
func (f *DefaultClientFactory) CreateClient(ctx context.Context, dsSettings backend.DataSourceInstanceSettings, settings *config.Settings) (*Client, error) {
	if len(dsSettings.JSONData) == 0 {
		dsSettings.JSONData = []byte("{}")
	}
	opts, err := dsSettings.HTTPClientOptions(ctx)
	if err != nil {
		return nil, &ClientError{Msg: "could not read HTTP client options", Err: err}
	}
	if opts.Timeouts == nil {
		timeouts := httpclient.DefaultTimeoutOptions
		opts.Timeouts = &timeouts
	}
	opts.Timeouts.Timeout = settings.Timeout()

	httpClient, err := newHTTPClient(opts)
	if err != nil {
		return nil, &ClientError{Msg: "failed to initialize HTTP client", Err: err}
	}

	cfg := DefaultConfig()
	cfg.BaseURL = settings.URL
	cfg.TenantID = settings.TenantID
	cfg.Timeout = settings.Timeout()
	cfg.RateLimit = settings.RateLimit
	cfg.RateBurst = settings.RateBurst
	cfg.HTTPClient = httpClient
	if settings.Secrets != nil {
		cfg.BearerToken = settings.Secrets.BearerToken
	}
	return NewClient(cfg)
}

// NewFromSettings creates a client with the given factory.
func NewFromSettings(ctx context.Context, factory ClientFactory, dsSettings backend.DataSourceInstanceSettings, settings *config.Settings) (*Client, error) {
	if factory == nil {
		factory = &DefaultClientFactory{}
	}
	return factory.CreateClient(ctx, dsSettings, settings)
}
