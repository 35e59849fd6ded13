package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"mirador-grafana-plugin/pkg/client"
	"mirador-grafana-plugin/pkg/formatter"
	"mirador-grafana-plugin/pkg/models"
	"mirador-grafana-plugin/pkg/querybuilder"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/backend/resource/httpadapter"
)

const maxBuildRequestBytes = 1 << 20

func newResourceHandler(d *Datasource) backend.CallResourceHandler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /labels", d.handleLabels)
	mux.HandleFunc("GET /labels/{name}/values", d.handleLabelValues)
	mux.HandleFunc("GET /metrics/names", d.handleList(func(ctx context.Context, _ *http.Request) ([]byte, error) {
		return d.api.MetricNames(ctx)
	}))
	mux.HandleFunc("GET /logs/fields", d.handleList(func(ctx context.Context, _ *http.Request) ([]byte, error) {
		return d.api.LogFields(ctx)
	}))
	mux.HandleFunc("GET /traces/services", d.handleList(func(ctx context.Context, _ *http.Request) ([]byte, error) {
		return d.api.TraceServices(ctx)
	}))
	mux.HandleFunc("POST /query/build", d.handleBuildQuery)
	return httpadapter.New(mux)
}

func (d *Datasource) handleLabels(w http.ResponseWriter, r *http.Request) {
	d.handleList(func(ctx context.Context, r *http.Request) ([]byte, error) {
		return d.api.Labels(ctx, labelsRequestFromURL(r))
	})(w, r)
}

func (d *Datasource) handleLabelValues(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	d.handleList(func(ctx context.Context, r *http.Request) ([]byte, error) {
		return d.api.LabelValues(ctx, name, labelsRequestFromURL(r))
	})(w, r)
}

// handleList calls an enumeration endpoint and answers with a JSON string array.
func (d *Datasource) handleList(fetch func(ctx context.Context, r *http.Request) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !d.ready(w) {
			return
		}
		body, err := fetch(r.Context(), r)
		if err != nil {
			log.DefaultLogger.FromContext(r.Context()).Error("Resource request failed", "path", r.URL.Path, "error", err)
			writeError(w, upstreamStatus(err), err)
			return
		}
		values, err := formatter.ExtractStringList(body)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, values)
	}
}

type buildResponse struct {
	Query string `json:"query"`
}

func (d *Datasource) handleBuildQuery(w http.ResponseWriter, r *http.Request) {
	if !d.ready(w) {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBuildRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	qm, err := models.ParseQuery(backend.DataQuery{JSON: raw})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	query, err := querybuilder.BuildQuery(qm, d.settings.DefaultLogsLanguage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, buildResponse{Query: query})
}

func (d *Datasource) ready(w http.ResponseWriter) bool {
	if d.settingsErr != nil {
		writeError(w, http.StatusServiceUnavailable, d.settingsErr)
		return false
	}
	if d.api == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("Mirador Core client is not initialized"))
		return false
	}
	return true
}

// labelsRequestFromURL reads start, end (RFC3339 or epoch seconds) and
// match[] from the query string.
func labelsRequestFromURL(r *http.Request) client.LabelsRequest {
	q := r.URL.Query()
	return client.LabelsRequest{
		Start: parseTimeParam(q.Get("start")),
		End:   parseTimeParam(q.Get("end")),
		Match: q["match[]"],
	}
}

func parseTimeParam(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(secs * 1000)).UTC()
	}
	return time.Time{}
}

// upstreamStatus passes client errors from the backend through as 502 and
// keeps 4xx answers visible to the editor.
func upstreamStatus(err error) int {
	var clientErr *client.ClientError
	if errors.As(err, &clientErr) && clientErr.StatusCode >= 400 && clientErr.StatusCode < 500 {
		return clientErr.StatusCode
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.DefaultLogger.Error("Failed to write resource response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
