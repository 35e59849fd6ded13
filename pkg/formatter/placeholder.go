package formatter

import (
	"time"

	"mirador-grafana-plugin/pkg/constant"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// Placeholder returns the two-point frame (time=[from,to], value=[0,0]) that
// stands in for a failed query, with the failure attached as an error notice.
func Placeholder(query backend.DataQuery, cause error) *data.Frame {
	frame := data.NewFrame(constant.PlaceholderFrameName,
		data.NewField(constant.TimeFieldName, nil, []time.Time{query.TimeRange.From, query.TimeRange.To}),
		data.NewField(constant.ValueFieldName, nil, []float64{0, 0}),
	)
	frame.RefID = query.RefID
	frame.Meta = &data.FrameMeta{
		PreferredVisualization: data.VisTypeGraph,
	}
	if cause != nil {
		frame.Meta.Notices = []data.Notice{{
			Severity: data.NoticeSeverityError,
			Text:     cause.Error(),
		}}
	}
	return frame
}
