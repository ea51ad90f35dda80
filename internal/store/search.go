package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Term is one search condition. An empty Key matches any field.
type Term struct {
	Key   string
	Value string
}

// ParseQuery splits "key:value" words into terms. Words without a colon
// match values of any field.
func ParseQuery(words []string) []Term {
	terms := make([]Term, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if k, v, ok := strings.Cut(w, ":"); ok && k != "" && !strings.HasPrefix(v, "//") {
			terms = append(terms, Term{Key: k, Value: v})
			continue
		}
		terms = append(terms, Term{Value: w})
	}
	return terms
}

// Hit is a record matching every term of a query.
type Hit struct {
	Root    string              `json:"root"`
	Path    string              `json:"path,omitempty"`
	Matches map[string][]string `json:"matches"`
}

// Search returns the records matching all terms. Keys match the full dotted
// field name or any dotted suffix of it, so "subject.sex" finds
// "bids.subject.sex". Values match case-insensitively as substrings; an
// empty value only requires the key.
func (s *Store) Search(ctx context.Context, terms []Term) ([]Hit, error) {
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query")
	}
	type recKey struct{ root, path string }
	var result map[recKey]map[string][]string

	for _, t := range terms {
		query := "SELECT root, path, key, value FROM fields WHERE 1=1"
		var args []any
		if t.Key != "" {
			query += " AND (key = ? OR key LIKE ? ESCAPE '\\')"
			args = append(args, t.Key, "%."+escapeLike(t.Key))
		}
		if t.Value != "" {
			query += " AND value LIKE ? ESCAPE '\\'"
			args = append(args, "%"+escapeLike(t.Value)+"%")
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		matched := make(map[recKey]map[string][]string)
		for rows.Next() {
			var k recKey
			var key, value string
			if err := rows.Scan(&k.root, &k.path, &key, &value); err != nil {
				rows.Close()
				return nil, err
			}
			if matched[k] == nil {
				matched[k] = make(map[string][]string)
			}
			matched[k][key] = append(matched[k][key], value)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}

		if result == nil {
			result = matched
			continue
		}
		for k, fields := range result {
			more, ok := matched[k]
			if !ok {
				delete(result, k)
				continue
			}
			for key, vals := range more {
				fields[key] = append(fields[key], vals...)
			}
		}
	}

	hits := make([]Hit, 0, len(result))
	for k, fields := range result {
		for key, vals := range fields {
			fields[key] = dedupe(vals)
		}
		hits = append(hits, Hit{Root: k.root, Path: k.path, Matches: fields})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Root != hits[j].Root {
			return hits[i].Root < hits[j].Root
		}
		return hits[i].Path < hits[j].Path
	})
	return hits, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func dedupe(vals []string) []string {
	slices.Sort(vals)
	return slices.Compact(vals)
}
