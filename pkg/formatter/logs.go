package formatter

import (
	"encoding/json"
	"time"

	"mirador-grafana-plugin/pkg/constant"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/valyala/fastjson"
)

var (
	logTimeKeys    = []string{"timestamp", "_time", "time"}
	logMessageKeys = []string{"message", "_msg", "msg", "line"}
	logLevelKeys   = []string{"level", "severity"}
	logServiceKeys = []string{"service", "service.name"}
)

// knownLogKeys are consumed into dedicated columns and left out of labels.
var knownLogKeys = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, keys := range [][]string{logTimeKeys, logMessageKeys, logLevelKeys, logServiceKeys} {
		for _, k := range keys {
			m[k] = struct{}{}
		}
	}
	return m
}()

// FormatLogs converts a log search response into a single logs frame with
// time, message, level, service and labels columns. Records without a
// timestamp are stamped with the end of the query range.
func FormatLogs(body []byte, query backend.DataQuery) (data.Frames, error) {
	var (
		times    []time.Time
		messages []string
		levels   []string
		services []string
		labels   []json.RawMessage
	)

	err := withParsed(body, func(root *fastjson.Value) error {
		records, _ := locateRecords(root, recordPaths("logs"))
		var arena fastjson.Arena
		for _, rec := range records {
			if rec.Type() != fastjson.TypeObject {
				// A bare line.
				times = append(times, query.TimeRange.To)
				messages = append(messages, stringOf(rec))
				levels = append(levels, constant.DefaultLogLevel)
				services = append(services, "")
				labels = append(labels, json.RawMessage("{}"))
				continue
			}

			ts, ok := timeField(rec, logTimeKeys...)
			if !ok {
				ts = query.TimeRange.To
			}
			times = append(times, ts)
			messages = append(messages, stringField(rec, "", logMessageKeys...))
			levels = append(levels, stringField(rec, constant.DefaultLogLevel, logLevelKeys...))
			services = append(services, stringField(rec, "", logServiceKeys...))
			labels = append(labels, remainingLabels(&arena, rec))
			arena.Reset()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	frame := newLogsFrame(query.RefID, times, messages, levels, services, labels)
	return data.Frames{frame}, nil
}

func newLogsFrame(refID string, times []time.Time, messages, levels, services []string, labels []json.RawMessage) *data.Frame {
	if times == nil {
		times, messages, levels, services, labels = []time.Time{}, []string{}, []string{}, []string{}, []json.RawMessage{}
	}
	frame := data.NewFrame(constant.LogsFrameName,
		data.NewField(constant.TimeFieldName, nil, times),
		data.NewField(constant.MessageFieldName, nil, messages),
		data.NewField(constant.LevelFieldName, nil, levels),
		data.NewField(constant.ServiceFieldName, nil, services),
		data.NewField(constant.LabelsFieldName, nil, labels),
	)
	frame.RefID = refID
	frame.Meta = &data.FrameMeta{
		PreferredVisualization: data.VisTypeLogs,
	}
	return frame
}

// remainingLabels collects the keys of rec that have no dedicated column
// into a JSON object.
func remainingLabels(arena *fastjson.Arena, rec *fastjson.Value) json.RawMessage {
	out := arena.NewObject()
	obj, _ := rec.Object()
	obj.Visit(func(key []byte, v *fastjson.Value) {
		if _, known := knownLogKeys[string(key)]; known {
			return
		}
		out.Set(string(key), v)
	})
	return json.RawMessage(out.MarshalTo(nil))
}
