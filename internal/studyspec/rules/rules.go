// Package rules derives study specification values from DICOM series
// metadata.
package rules

import (
	"fmt"
	"regexp"
)

// Keywords are the entry fields of a dicomseries specification that rules
// may set.
var Keywords = []string{
	"description", "comment", "subject", "session", "task", "run",
	"modality", "converter", "id",
}

// Series is one image series record as reported by the DICOM extractor.
type Series = map[string]any

// Rule derives one value set per series, in the order of the input.
type Rule interface {
	Apply(series []Series) []map[string]any
}

// For returns the rules to apply to the series, in order. Values of later
// rules override earlier ones.
func For(series []Series) []Rule {
	return []Rule{DefaultRules{}}
}

// DefaultRules maps DICOM attributes onto specification values. Runs are
// counted per ProtocolName.
type DefaultRules struct{}

// Apply implements Rule.
func (DefaultRules) Apply(series []Series) []map[string]any {
	runs := make(map[string]int)
	out := make([]map[string]any, 0, len(series))
	for _, s := range series {
		protocol := Text(s["ProtocolName"])
		runs[protocol]++
		out = append(out, map[string]any{
			"description": Text(s["SeriesDescription"]),
			"comment":     "",
			"subject":     Sanitize(Text(s["PatientName"])),
			"session":     Sanitize(protocol),
			"task":        Sanitize(protocol),
			"run":         runs[protocol],
			"modality":    "",
			"id":          s["SeriesNumber"],
		})
	}
	return out
}

// Letters and digits of any script survive.
var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Sanitize strips everything a BIDS label may not contain.
func Sanitize(value string) string {
	return nonAlnum.ReplaceAllString(value, "")
}

// SeriesIsValid reports whether a series carries the attributes needed to
// convert it.
func SeriesIsValid(s Series) bool {
	for _, k := range []string{"SeriesInstanceUID", "PatientName", "ProtocolName"} {
		if Text(s[k]) == "" {
			return false
		}
	}
	return true
}

// Text renders a metadata value as a string. Missing values are empty.
func Text(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
