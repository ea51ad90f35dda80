package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Field is one searchable key/value pair.
type Field struct {
	Key   string
	Value string
}

// Flatten turns nested metadata into dotted keys under prefix. List items
// share their parent key. JSON-LD context entries are skipped.
func Flatten(prefix string, md map[string]any) []Field {
	var out []Field
	var walk func(key string, v any)
	walk = func(key string, v any) {
		switch v := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				if k == "@context" {
					continue
				}
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(key+"."+k, v[k])
			}
		case []any:
			for _, item := range v {
				walk(key, item)
			}
		case nil:
		default:
			out = append(out, Field{Key: key, Value: scalar(v)})
		}
	}
	walk(prefix, md)
	return out
}

func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// UniqueProperties collects, per top-level key, the distinct values found
// across file records. Keys in exclude and JSON-LD keys are skipped.
func UniqueProperties(files []map[string]any, exclude []string) map[string][]any {
	skip := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		skip[k] = true
	}
	seen := make(map[string]map[string]any)
	for _, md := range files {
		for k, v := range md {
			if skip[k] || strings.HasPrefix(k, "@") || v == nil {
				continue
			}
			id, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if seen[k] == nil {
				seen[k] = make(map[string]any)
			}
			seen[k][string(id)] = v
		}
	}
	out := make(map[string][]any, len(seen))
	for k, vals := range seen {
		ids := make([]string, 0, len(vals))
		for id := range vals {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		list := make([]any, 0, len(ids))
		for _, id := range ids {
			list = append(list, vals[id])
		}
		out[k] = list
	}
	return out
}
