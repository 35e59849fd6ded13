// Package plugin implements the Mirador Core Grafana datasource plugin.
// It provides functionality to query logs, metrics and traces from Mirador Core
// and integrate them with Grafana.
package plugin

import (
	"context"
	"fmt"

	"mirador-grafana-plugin/pkg/client"
	"mirador-grafana-plugin/pkg/config"
	"mirador-grafana-plugin/pkg/handler"
	"mirador-grafana-plugin/pkg/health"
	"mirador-grafana-plugin/pkg/metrics"
	"mirador-grafana-plugin/pkg/miradoriface"
	"mirador-grafana-plugin/pkg/validator"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/instancemgmt"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"golang.org/x/sync/errgroup"
)

var (
	_ backend.QueryDataHandler      = (*Datasource)(nil)
	_ backend.CheckHealthHandler    = (*Datasource)(nil)
	_ backend.CallResourceHandler   = (*Datasource)(nil)
	_ instancemgmt.InstanceDisposer = (*Datasource)(nil)
)

// clientFactory is used by NewDatasource. Tests replace it.
var clientFactory client.ClientFactory = &client.DefaultClientFactory{}

// Datasource implements the Mirador Core Grafana datasource plugin.
// It handles data queries, health checks, and resource requests.
type Datasource struct {
	settings *config.Settings
	api      miradoriface.API

	// settingsErr is set when the instance settings are unusable; every query
	// and resource call then reports it.
	settingsErr error

	resourceHandler backend.CallResourceHandler
}

// NewDatasource creates a new instance of the Mirador Core datasource.
// It is called by the Grafana plugin SDK when a new datasource instance is needed.
// Invalid settings do not fail instance creation so that the problem is
// reported next to each query and by the health check.
func NewDatasource(ctx context.Context, dsSettings backend.DataSourceInstanceSettings) (instancemgmt.Instance, error) {
	logger := log.DefaultLogger.FromContext(ctx)
	d := &Datasource{}
	d.resourceHandler = newResourceHandler(d)

	settings, err := config.LoadSettings(dsSettings)
	if err != nil {
		logger.Error("Failed to load plugin settings", "error", err, "datasourceID", dsSettings.ID)
		d.settingsErr = err
		return d, nil
	}
	d.settings = settings

	if err := validator.ValidateSettings(settings); err != nil {
		logger.Error("Invalid plugin configuration", "error", err, "datasourceID", dsSettings.ID)
		d.settingsErr = err
		return d, nil
	}

	c, err := client.NewFromSettings(ctx, clientFactory, dsSettings, settings)
	if err != nil {
		logger.Error("Failed to create Mirador Core client", "error", err, "datasourceID", dsSettings.ID)
		d.settingsErr = err
		return d, nil
	}
	d.api = c

	logger.Debug("Mirador Core datasource created", "datasourceID", dsSettings.ID, "url", settings.URL, "maxConcurrentQueries", settings.MaxConcurrentQueries)
	return d, nil
}

// Dispose cleans up resources when a datasource instance is no longer needed.
// It is called by the Grafana plugin SDK when a datasource instance is being disposed.
func (d *Datasource) Dispose() {
	log.DefaultLogger.Debug("Mirador Core Datasource instance disposed")
}

// QueryData handles incoming data queries from Grafana.
// Queries run concurrently, bounded by maxConcurrentQueries, and each answers
// independently: a failing query becomes a placeholder frame.
func (d *Datasource) QueryData(ctx context.Context, req *backend.QueryDataRequest) (*backend.QueryDataResponse, error) {
	logger := log.DefaultLogger.FromContext(ctx)
	response := backend.NewQueryDataResponse()

	if d.settingsErr != nil {
		logger.Error("Rejecting queries, datasource is misconfigured", "error", d.settingsErr)
		for _, q := range req.Queries {
			response.Responses[q.RefID] = backend.ErrDataResponse(backend.StatusBadRequest,
				fmt.Sprintf("invalid datasource configuration: %s", d.settingsErr.Error()))
		}
		return response, nil
	}

	results := make([]backend.DataResponse, len(req.Queries))
	var g errgroup.Group
	g.SetLimit(d.settings.MaxConcurrentQueries)

	for i, q := range req.Queries {
		g.Go(func() error {
			metrics.IncrementConcurrentQueries()
			defer metrics.DecrementConcurrentQueries()
			results[i] = handler.HandleQuery(ctx, d.api, d.settings, q)
			return nil
		})
	}
	_ = g.Wait()

	for i, q := range req.Queries {
		response.Responses[q.RefID] = results[i]
	}
	logger.Debug("QueryData completed", "queries", len(req.Queries))
	return response, nil
}

// CheckHealth performs a health check of the datasource.
// It validates the configuration and calls the Mirador Core health endpoint.
func (d *Datasource) CheckHealth(ctx context.Context, req *backend.CheckHealthRequest) (*backend.CheckHealthResult, error) {
	log.DefaultLogger.Debug("Datasource.CheckHealth: Initiating health check routing")

	if req.PluginContext.DataSourceInstanceSettings == nil {
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusError,
			Message: "Datasource settings are missing from the health check request.",
		}, nil
	}

	healthResult, err := health.ExecuteHealthCheck(ctx, *req.PluginContext.DataSourceInstanceSettings)
	if err != nil {
		log.DefaultLogger.Error("Datasource.CheckHealth: Health check failed internally", "error", err)
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusError,
			Message: fmt.Sprintf("Health check encountered an internal error: %s", err.Error()),
		}, nil
	}

	return healthResult, nil
}

// CallResource serves the editor's resource requests (label, metric, field
// and service lists, and builder previews).
func (d *Datasource) CallResource(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	return d.resourceHandler.CallResource(ctx, req, sender)
}
