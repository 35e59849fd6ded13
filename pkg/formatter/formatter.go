// Package formatter handles the conversion of Mirador Core API responses
// into Grafana data frames. Responses are not consistently nested, so each
// translator probes a fixed list of known shapes before reading records.
package formatter

import (
	"fmt"

	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// recordPaths lists where an array of records may live, in probe order:
// data.<key>, <key>, data, data.result, result.
func recordPaths(domainKey string) [][]string {
	return [][]string{
		{"data", domainKey},
		{domainKey},
		{"data"},
		{"data", "result"},
		{"result"},
	}
}

// locateRecords returns the first array found along paths. The boolean is
// false when none of the paths holds an array.
func locateRecords(root *fastjson.Value, paths [][]string) ([]*fastjson.Value, bool) {
	if root.Type() == fastjson.TypeArray {
		return root.GetArray(), true
	}
	for _, path := range paths {
		v := root.Get(path...)
		if v != nil && v.Type() == fastjson.TypeArray {
			return v.GetArray(), true
		}
	}
	return nil, false
}

// withParsed parses body with a pooled parser and hands the root to fn.
// Values must not escape fn.
func withParsed(body []byte, fn func(root *fastjson.Value) error) error {
	p := parserPool.Get()
	defer parserPool.Put(p)

	root, err := p.ParseBytes(body)
	if err != nil {
		return fmt.Errorf("error parsing response JSON: %w", err)
	}
	return fn(root)
}
