package metadata

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps extractor names to extractors. Lookups are case-insensitive.
type Registry struct {
	byName map[string]Extractor
}

// NewRegistry returns a registry holding the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byName: make(map[string]Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds e, replacing any extractor with the same name.
func (r *Registry) Register(e Extractor) {
	r.byName[normalize(e.Name())] = e
}

// Lookup returns the extractor registered under name. If there is none, the
// error suggests the closest registered name (Levenshtein distance <= 3).
func (r *Registry) Lookup(name string) (Extractor, error) {
	key := normalize(name)
	if e, ok := r.byName[key]; ok {
		return e, nil
	}
	if suggestion := r.closest(key); suggestion != "" {
		return nil, fmt.Errorf("unknown extractor %q, did you mean %q?", name, suggestion)
	}
	return nil, fmt.Errorf("unknown extractor %q (available: %s)", name, strings.Join(r.Names(), ", "))
}

// Select resolves a list of names, failing on the first unknown one.
func (r *Registry) Select(names []string) ([]Extractor, error) {
	out := make([]Extractor, 0, len(names))
	for _, n := range names {
		e, err := r.Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for _, e := range r.byName {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) closest(input string) string {
	const maxDistance = 3
	bestDistance := maxDistance + 1
	var bestMatch string

	for _, name := range r.Names() {
		distance := levenshteinDistance(input, normalize(name))
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = name
		}
	}
	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance is the minimum number of single-character edits
// needed to turn a into b.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
