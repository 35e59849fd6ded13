package formatter

import (
	"sort"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/valyala/fastjson"
)

// listPaths are probed in order for enumeration endpoints (metric names,
// labels, label values, log fields, services).
var listPaths = [][]string{
	{"data"},
	{"data", "names"},
	{"data", "labels"},
	{"data", "values"},
	{"data", "metrics"},
	{"data", "fields"},
	{"data", "services"},
	{"data", "result"},
	{"names"},
	{"labels"},
	{"values"},
	{"metrics"},
	{"fields"},
	{"services"},
	{"result"},
}

// ExtractStringList reads an enumeration response as a sorted, de-duplicated
// list. Elements may be strings or objects carrying a name.
func ExtractStringList(body []byte) ([]string, error) {
	out := []string{}
	err := withParsed(body, func(root *fastjson.Value) error {
		items, _ := locateRecords(root, listPaths)
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			var s string
			switch item.Type() {
			case fastjson.TypeString:
				s = string(item.GetStringBytes())
			case fastjson.TypeObject:
				s = stringField(item, "", "name", "key", "value")
			default:
				s = stringOf(item)
			}
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// FormatStringList converts an enumeration response into a one-column frame
// named after the column.
func FormatStringList(body []byte, column string, query backend.DataQuery) (data.Frames, error) {
	values, err := ExtractStringList(body)
	if err != nil {
		return nil, err
	}
	frame := data.NewFrame(column, data.NewField(column, nil, values))
	frame.RefID = query.RefID
	frame.Meta = &data.FrameMeta{
		PreferredVisualization: data.VisTypeTable,
	}
	return data.Frames{frame}, nil
}
