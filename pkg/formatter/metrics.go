package formatter

import (
	"encoding/json"
	"fmt"
	"time"

	"mirador-grafana-plugin/pkg/constant"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/prometheus/common/model"
	"github.com/valyala/fastjson"
)

// FormatMetrics converts a Prometheus-style metrics response into frames, one
// per series. The result type is read from resultType when present and
// otherwise inferred from the first series.
func FormatMetrics(body []byte, query backend.DataQuery) (data.Frames, error) {
	var (
		resultType string
		raw        []byte
	)
	err := withParsed(body, func(root *fastjson.Value) error {
		resultType, raw = locateMetricsResult(root)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return data.Frames{emptySeriesFrame(query.RefID)}, nil
	}

	var frames data.Frames
	switch resultType {
	case model.ValMatrix.String():
		var matrix model.Matrix
		if err := json.Unmarshal(raw, &matrix); err != nil {
			return nil, fmt.Errorf("error decoding matrix result: %w", err)
		}
		frames = matrixFrames(matrix, query.RefID)
	case model.ValVector.String():
		var vector model.Vector
		if err := json.Unmarshal(raw, &vector); err != nil {
			return nil, fmt.Errorf("error decoding vector result: %w", err)
		}
		frames = vectorFrames(vector, query.RefID)
	case model.ValScalar.String():
		var scalar model.Scalar
		if err := json.Unmarshal(raw, &scalar); err != nil {
			return nil, fmt.Errorf("error decoding scalar result: %w", err)
		}
		frames = data.Frames{seriesFrame(query.RefID, "", nil,
			[]time.Time{scalar.Timestamp.Time().UTC()}, []float64{float64(scalar.Value)})}
	default:
		return nil, fmt.Errorf("unsupported metrics result type %q", resultType)
	}

	if len(frames) == 0 {
		return data.Frames{emptySeriesFrame(query.RefID)}, nil
	}
	return frames, nil
}

// locateMetricsResult finds the result payload. It returns a nil raw slice
// when the response holds no result.
func locateMetricsResult(root *fastjson.Value) (string, []byte) {
	var arena fastjson.Arena
	for _, path := range [][]string{{"data"}, {}} {
		container := root.Get(path...)
		if container == nil || container.Type() != fastjson.TypeObject {
			continue
		}
		rt := container.GetStringBytes("resultType")
		result := container.Get("result")
		if rt != nil && result != nil {
			quoteSampleValues(&arena, result)
			return string(rt), result.MarshalTo(nil)
		}
	}

	// No resultType: fall back to the generic record shapes and infer.
	records, ok := locateRecords(root, recordPaths("result"))
	if !ok || len(records) == 0 {
		return "", nil
	}
	resultType := model.ValVector.String()
	if records[0].Exists("values") {
		resultType = model.ValMatrix.String()
	}
	arr := arena.NewArray()
	for i, r := range records {
		arr.SetArrayItem(i, r)
	}
	quoteSampleValues(&arena, arr)
	return resultType, arr.MarshalTo(nil)
}

// quoteSampleValues rewrites numeric sample values ([ts, 1.5]) as strings
// ([ts, "1.5"]), the only form the Prometheus model decoder accepts. result
// is a scalar pair or a list of series carrying value or values.
func quoteSampleValues(arena *fastjson.Arena, result *fastjson.Value) {
	quotePair(arena, result)
	for _, series := range result.GetArray() {
		if pair := series.Get("value"); pair != nil {
			quotePair(arena, pair)
		}
		for _, pair := range series.GetArray("values") {
			quotePair(arena, pair)
		}
	}
}

func quotePair(arena *fastjson.Arena, pair *fastjson.Value) {
	if pair.Type() != fastjson.TypeArray {
		return
	}
	items := pair.GetArray()
	if len(items) == 2 && items[0].Type() == fastjson.TypeNumber && items[1].Type() == fastjson.TypeNumber {
		pair.SetArrayItem(1, arena.NewString(items[1].String()))
	}
}

func matrixFrames(matrix model.Matrix, refID string) data.Frames {
	frames := make(data.Frames, 0, len(matrix))
	for _, stream := range matrix {
		times := make([]time.Time, len(stream.Values))
		values := make([]float64, len(stream.Values))
		for i, pair := range stream.Values {
			times[i] = pair.Timestamp.Time().UTC()
			values[i] = float64(pair.Value)
		}
		frames = append(frames, seriesFrame(refID, stream.Metric.String(), stream.Metric, times, values))
	}
	return frames
}

func vectorFrames(vector model.Vector, refID string) data.Frames {
	frames := make(data.Frames, 0, len(vector))
	for _, sample := range vector {
		frames = append(frames, seriesFrame(refID, sample.Metric.String(), sample.Metric,
			[]time.Time{sample.Timestamp.Time().UTC()}, []float64{float64(sample.Value)}))
	}
	return frames
}

func seriesFrame(refID, name string, metric model.Metric, times []time.Time, values []float64) *data.Frame {
	var labels data.Labels
	if len(metric) > 0 {
		labels = make(data.Labels, len(metric))
		for k, v := range metric {
			labels[string(k)] = string(v)
		}
	}
	frame := data.NewFrame(name,
		data.NewField(constant.TimeFieldName, nil, times),
		data.NewField(constant.ValueFieldName, labels, values),
	)
	frame.RefID = refID
	frame.Meta = &data.FrameMeta{
		Type:                   data.FrameTypeTimeSeriesMulti,
		PreferredVisualization: data.VisTypeGraph,
	}
	return frame
}

func emptySeriesFrame(refID string) *data.Frame {
	return seriesFrame(refID, "", nil, []time.Time{}, []float64{})
}
