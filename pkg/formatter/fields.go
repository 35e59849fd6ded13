package formatter

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

// firstValue returns the first non-null value among keys of obj.
func firstValue(obj *fastjson.Value, keys ...string) *fastjson.Value {
	if obj == nil || obj.Type() != fastjson.TypeObject {
		return nil
	}
	for _, k := range keys {
		if v := obj.Get(k); v != nil && v.Type() != fastjson.TypeNull {
			return v
		}
	}
	return nil
}

func stringField(obj *fastjson.Value, def string, keys ...string) string {
	v := firstValue(obj, keys...)
	if v == nil {
		return def
	}
	return stringOf(v)
}

// stringOf renders scalars as plain text and objects or arrays as JSON.
func stringOf(v *fastjson.Value) string {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNull:
		return ""
	default:
		return v.String()
	}
}

func floatField(obj *fastjson.Value, keys ...string) (float64, bool) {
	v := firstValue(obj, keys...)
	if v == nil {
		return 0, false
	}
	return floatOf(v)
}

func floatOf(v *fastjson.Value) (float64, bool) {
	switch v.Type() {
	case fastjson.TypeNumber:
		f, err := v.Float64()
		return f, err == nil
	case fastjson.TypeString:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v.GetStringBytes())), 64)
		return f, err == nil
	}
	return 0, false
}

func timeField(obj *fastjson.Value, keys ...string) (time.Time, bool) {
	v := firstValue(obj, keys...)
	if v == nil {
		return time.Time{}, false
	}
	return timeOf(v)
}

// timeOf reads an epoch number (unit inferred from magnitude), an RFC3339
// string or a numeric string.
func timeOf(v *fastjson.Value) (time.Time, bool) {
	switch v.Type() {
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return epochToTime(f), true
	case fastjson.TypeString:
		s := strings.TrimSpace(string(v.GetStringBytes()))
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToTime(f), true
		}
	}
	return time.Time{}, false
}

// epochUnit infers the unit of an epoch number from its magnitude: below 1e11
// seconds, below 1e14 milliseconds, below 1e17 microseconds, otherwise
// nanoseconds.
func epochUnit(f float64) time.Duration {
	switch abs := math.Abs(f); {
	case abs < 1e11:
		return time.Second
	case abs < 1e14:
		return time.Millisecond
	case abs < 1e17:
		return time.Microsecond
	default:
		return time.Nanosecond
	}
}

func epochToTime(f float64) time.Time {
	switch epochUnit(f) {
	case time.Second:
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	case time.Millisecond:
		return time.UnixMicro(int64(f * 1e3)).UTC()
	case time.Microsecond:
		return time.UnixMicro(int64(f)).UTC()
	default:
		return time.Unix(0, int64(f)).UTC()
	}
}

// toMillis converts t to fractional epoch milliseconds.
func toMillis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}
