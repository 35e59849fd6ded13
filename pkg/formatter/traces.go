package formatter

import (
	"encoding/json"
	"strings"
	"time"

	"mirador-grafana-plugin/pkg/constant"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/valyala/fastjson"
)

var (
	traceIDKeys        = []string{"traceID", "traceId", "trace_id"}
	traceServiceKeys   = []string{"rootServiceName", "serviceName", "service"}
	traceOperationKeys = []string{"rootTraceName", "operationName", "operation"}
	traceStartKeys     = []string{"startTime", "start_time", "timestamp"}
	traceDurationKeys  = []string{"durationMs", "duration"}

	spanIDKeys        = []string{"spanID", "spanId", "span_id"}
	spanParentKeys    = []string{"parentSpanID", "parentSpanId", "parent_span_id", "parentId"}
	spanOperationKeys = []string{"operationName", "name", "operation"}
	spanServiceKeys   = []string{"serviceName", "service"}
	spanTagKeys       = []string{"tags", "attributes"}
)

// FormatTraces converts a trace search response into a table of traces.
// Durations are milliseconds.
func FormatTraces(body []byte, query backend.DataQuery) (data.Frames, error) {
	var (
		ids        = []string{}
		services   = []string{}
		operations = []string{}
		starts     = []time.Time{}
		durations  = []float64{}
		spanCounts = []int64{}
	)

	err := withParsed(body, func(root *fastjson.Value) error {
		records, _ := locateRecords(root, recordPaths("traces"))
		for _, rec := range records {
			if rec.Type() != fastjson.TypeObject {
				continue
			}
			ids = append(ids, stringField(rec, "", traceIDKeys...))
			services = append(services, stringField(rec, "", traceServiceKeys...))
			operations = append(operations, stringField(rec, "", traceOperationKeys...))
			start, ok := timeField(rec, traceStartKeys...)
			if !ok {
				start = query.TimeRange.From
			}
			starts = append(starts, start)
			d, _ := floatField(rec, traceDurationKeys...)
			durations = append(durations, d)
			spanCounts = append(spanCounts, spanCount(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	frame := data.NewFrame(constant.TracesFrameName,
		data.NewField("traceID", nil, ids),
		data.NewField("serviceName", nil, services),
		data.NewField("operationName", nil, operations),
		data.NewField("startTime", nil, starts),
		data.NewField("duration", nil, durations).SetConfig(&data.FieldConfig{Unit: "ms"}),
		data.NewField("spanCount", nil, spanCounts),
	)
	frame.RefID = query.RefID
	frame.Meta = &data.FrameMeta{
		PreferredVisualization: data.VisTypeTable,
	}
	return data.Frames{frame}, nil
}

// spanCount reads spanCount, or the length of spans when it is an array.
func spanCount(rec *fastjson.Value) int64 {
	if n, ok := floatField(rec, "spanCount"); ok {
		return int64(n)
	}
	v := rec.Get("spans")
	if v == nil {
		return 0
	}
	if v.Type() == fastjson.TypeArray {
		return int64(len(v.GetArray()))
	}
	n, _ := floatOf(v)
	return int64(n)
}

// FormatTrace converts a single trace into a span frame for the trace view.
// traceID fills spans that do not carry their own.
func FormatTrace(body []byte, traceID string, query backend.DataQuery) (data.Frames, error) {
	var (
		traceIDs   = []string{}
		spanIDs    = []string{}
		parentIDs  = []string{}
		operations = []string{}
		services   = []string{}
		starts     = []float64{}
		durations  = []float64{}
		tags       = []json.RawMessage{}
	)

	err := withParsed(body, func(root *fastjson.Value) error {
		var arena fastjson.Arena
		for _, rec := range locateSpans(root) {
			span := rec.span
			traceIDs = append(traceIDs, stringField(span, traceID, traceIDKeys...))
			spanIDs = append(spanIDs, stringField(span, "", spanIDKeys...))
			parentIDs = append(parentIDs, spanParent(span))
			operations = append(operations, stringField(span, "", spanOperationKeys...))
			services = append(services, spanService(span, rec.processes))
			var startMs float64
			if start, ok := timeField(span, traceStartKeys...); ok {
				startMs = toMillis(start)
			}
			starts = append(starts, startMs)
			durations = append(durations, spanDurationMs(span))
			tags = append(tags, spanTags(&arena, span))
			arena.Reset()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	frame := data.NewFrame(constant.SpansFrameName,
		data.NewField("traceID", nil, traceIDs),
		data.NewField("spanID", nil, spanIDs),
		data.NewField("parentSpanID", nil, parentIDs),
		data.NewField("operationName", nil, operations),
		data.NewField("serviceName", nil, services),
		data.NewField("startTime", nil, starts),
		data.NewField("duration", nil, durations),
		data.NewField("tags", nil, tags),
	)
	frame.RefID = query.RefID
	frame.Meta = &data.FrameMeta{
		PreferredVisualization: data.VisTypeTrace,
	}
	return data.Frames{frame}, nil
}

// spanRecord is a span together with the process table of the trace it
// came from, if any.
type spanRecord struct {
	span      *fastjson.Value
	processes *fastjson.Value
}

// locateSpans finds the spans of a trace lookup. A located record that holds
// its own spans array is a whole trace ({"data":[{"traceID","spans","processes"}]})
// and contributes its spans; any other object is a span.
func locateSpans(root *fastjson.Value) []spanRecord {
	records, _ := locateRecords(root, recordPaths("spans"))
	processes := root.Get("data", "processes")
	if processes == nil {
		processes = root.Get("processes")
	}

	var out []spanRecord
	for _, rec := range records {
		if rec.Type() != fastjson.TypeObject {
			continue
		}
		if nested := rec.Get("spans"); nested != nil && nested.Type() == fastjson.TypeArray {
			for _, span := range nested.GetArray() {
				if span.Type() == fastjson.TypeObject {
					out = append(out, spanRecord{span: span, processes: rec.Get("processes")})
				}
			}
			continue
		}
		out = append(out, spanRecord{span: rec, processes: processes})
	}
	return out
}

// spanParent reads the parent span ID, falling back to the first CHILD_OF
// reference.
func spanParent(span *fastjson.Value) string {
	if p := stringField(span, "", spanParentKeys...); p != "" {
		return p
	}
	for _, ref := range span.GetArray("references") {
		if strings.EqualFold(string(ref.GetStringBytes("refType")), "CHILD_OF") {
			return stringField(ref, "", spanIDKeys...)
		}
	}
	return ""
}

// spanService reads the service from the span, its inline process, or the
// trace's process table keyed by processID.
func spanService(span, processes *fastjson.Value) string {
	if s := stringField(span, "", spanServiceKeys...); s != "" {
		return s
	}
	if s := stringOf(orNull(span.Get("process", "serviceName"))); s != "" {
		return s
	}
	if processes == nil {
		return ""
	}
	pid := stringField(span, "", "processID", "processId")
	if pid == "" {
		return ""
	}
	return stringOf(orNull(processes.Get(pid, "serviceName")))
}

// spanDurationMs reads durationMs as milliseconds. A bare duration shares the
// unit of a numeric start time when that is micro- or nanoseconds (Jaeger
// reports both in microseconds) and is milliseconds otherwise.
func spanDurationMs(span *fastjson.Value) float64 {
	if d, ok := floatField(span, "durationMs"); ok {
		return d
	}
	d, _ := floatField(span, "duration")
	if start := firstValue(span, traceStartKeys...); start != nil && start.Type() == fastjson.TypeNumber {
		f, _ := start.Float64()
		switch unit := epochUnit(f); unit {
		case time.Microsecond, time.Nanosecond:
			return d * float64(unit) / float64(time.Millisecond)
		}
	}
	return d
}

// spanTags renders tags as the [{key, value}] list the trace view expects.
// Tags may arrive as an object or already as such a list.
func spanTags(arena *fastjson.Arena, span *fastjson.Value) json.RawMessage {
	v := firstValue(span, spanTagKeys...)
	out := arena.NewArray()
	switch {
	case v == nil:
	case v.Type() == fastjson.TypeArray:
		return json.RawMessage(v.MarshalTo(nil))
	case v.Type() == fastjson.TypeObject:
		obj, _ := v.Object()
		i := 0
		obj.Visit(func(key []byte, val *fastjson.Value) {
			kv := arena.NewObject()
			kv.Set("key", arena.NewStringBytes(key))
			kv.Set("value", val)
			out.SetArrayItem(i, kv)
			i++
		})
	}
	return json.RawMessage(out.MarshalTo(nil))
}

var nullValue = fastjson.MustParse("null")

func orNull(v *fastjson.Value) *fastjson.Value {
	if v == nil {
		return nullValue
	}
	return v
}
