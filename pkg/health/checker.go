// Package health implements the datasource "Save & Test" check against the
// Mirador Core health endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mirador-grafana-plugin/pkg/client"
	"mirador-grafana-plugin/pkg/config"
	"mirador-grafana-plugin/pkg/validator"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// HealthAPI is the part of the Mirador Core client the check needs.
type HealthAPI interface {
	Health(ctx context.Context) (*client.HealthResult, error)
}

// Payload status values that count as healthy. An absent status does too.
var healthyStatuses = map[string]struct{}{
	"healthy": {},
	"ok":      {},
	"up":      {},
	"success": {},
	"pass":    {},
}

// PerformHealthCheck loads and validates the datasource settings, builds a
// client and calls the health endpoint.
//
// Configuration problems and unreachable backends are reported through the
// returned result; the error is reserved for unexpected internal failures.
func PerformHealthCheck(ctx context.Context, dsSettings backend.DataSourceInstanceSettings) (*backend.CheckHealthResult, error) {
	log.DefaultLogger.Debug("health.PerformHealthCheck: Starting health check")

	settings, err := config.LoadSettings(dsSettings)
	if err != nil {
		log.DefaultLogger.Error("health.PerformHealthCheck: Failed to load settings", "error", err)
		return errorResult("Failed to load datasource configuration: %s", err), nil
	}

	if err := validator.ValidateSettings(settings); err != nil {
		return errorResult("Datasource configuration is invalid: %s", err), nil
	}

	c, err := client.NewFromSettings(ctx, nil, dsSettings, settings)
	if err != nil {
		log.DefaultLogger.Error("health.PerformHealthCheck: Failed to create client", "error", err)
		return errorResult("Mirador Core client failed to initialize: %s", err), nil
	}

	result := CheckMirador(ctx, c)
	log.DefaultLogger.Debug("health.PerformHealthCheck: Health check completed", "status", result.Status.String(), "message", result.Message)
	return result, nil
}

// CheckMirador calls the health endpoint and turns the HTTP status and the
// payload status field into a result message.
func CheckMirador(ctx context.Context, api HealthAPI) *backend.CheckHealthResult {
	if api == nil {
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusError,
			Message: "Mirador Core client is not initialized for health check.",
		}
	}

	res, err := api.Health(ctx)
	if err != nil {
		var clientErr *client.ClientError
		if errors.As(err, &clientErr) && clientErr.StatusCode != 0 {
			return &backend.CheckHealthResult{
				Status:  backend.HealthStatusError,
				Message: fmt.Sprintf("Mirador Core health check failed (%s)", describe(clientErr.StatusCode, client.PayloadStatus([]byte(clientErr.Body)))),
			}
		}
		return errorResult("Failed to connect to Mirador Core: %s", err)
	}

	status := strings.ToLower(res.Status)
	if _, ok := healthyStatuses[status]; ok || status == "" {
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusOk,
			Message: fmt.Sprintf("Mirador Core is healthy (%s)", describe(res.StatusCode, res.Status)),
		}
	}
	return &backend.CheckHealthResult{
		Status:  backend.HealthStatusError,
		Message: fmt.Sprintf("Mirador Core reported an unhealthy status (%s)", describe(res.StatusCode, res.Status)),
	}
}

func describe(code int, status string) string {
	if status == "" {
		return fmt.Sprintf("HTTP %d", code)
	}
	return fmt.Sprintf("HTTP %d, status: %s", code, status)
}

func errorResult(format string, err error) *backend.CheckHealthResult {
	return &backend.CheckHealthResult{
		Status:  backend.HealthStatusError,
		Message: fmt.Sprintf(format, err.Error()),
	}
}

// ExecuteHealthCheck is a variable so tests can replace the full check.
var ExecuteHealthCheck = func(ctx context.Context, dsSettings backend.DataSourceInstanceSettings) (*backend.CheckHealthResult, error) {
	return PerformHealthCheck(ctx, dsSettings)
}
