// Package studyspec maintains study specifications: JSON streams of
// per-series entries whose derived fields carry an approval flag.
package studyspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/datalad/datalad-neuroimaging/internal/studyspec/rules"
)

// TypeDICOMSeries is the entry type of an image series.
const TypeDICOMSeries = "dicomseries"

// Field is a derived value together with its approval flag.
type Field struct {
	Value    any  `json:"value"`
	Approved bool `json:"approved"`
}

// Entry is one item of a study specification. The first six fields are
// managed automatically. Fields holds the derived keyword values. Keys this
// package does not know about are kept in Extra and written back unchanged.
type Entry struct {
	Type             string
	Status           string
	Location         string
	UID              string
	DatasetID        string
	DatasetRefcommit string
	Fields           map[string]Field
	Extra            map[string]json.RawMessage
}

// Get returns the named derived field.
func (e *Entry) Get(key string) (Field, bool) {
	f, ok := e.Fields[key]
	return f, ok
}

// Value returns the value of a derived field as text, "" when unset.
func (e *Entry) Value(key string) string {
	return rules.Text(e.Fields[key].Value)
}

// Set assigns a derived field as not yet approved.
func (e *Entry) Set(key string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]Field)
	}
	e.Fields[key] = Field{Value: value}
}

// Approve marks a derived field as approved, optionally replacing its value.
func (e *Entry) Approve(key string, value any) {
	if e.Fields == nil {
		e.Fields = make(map[string]Field)
	}
	e.Fields[key] = Field{Value: value, Approved: true}
}

// FieldNames returns the derived field names in keyword order, then any
// others sorted.
func (e *Entry) FieldNames() []string {
	var names, other []string
	for _, k := range rules.Keywords {
		if _, ok := e.Fields[k]; ok {
			names = append(names, k)
		}
	}
	for k := range e.Fields {
		if !slices.Contains(rules.Keywords, k) {
			other = append(other, k)
		}
	}
	slices.Sort(other)
	return append(names, other...)
}

// update overwrites e with every key set in src, keeping keys src lacks.
func (e *Entry) update(src Entry) {
	e.Type = src.Type
	e.Status = src.Status
	e.Location = src.Location
	e.UID = src.UID
	e.DatasetID = src.DatasetID
	e.DatasetRefcommit = src.DatasetRefcommit
	for k, f := range src.Fields {
		if e.Fields == nil {
			e.Fields = make(map[string]Field)
		}
		e.Fields[k] = f
		delete(e.Extra, k)
	}
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 6+len(e.Fields)+len(e.Extra))
	for k, v := range e.Extra {
		m[k] = v
	}
	for k, f := range e.Fields {
		m[k] = f
	}
	m["type"] = e.Type
	m["status"] = nil
	if e.Status != "" {
		m["status"] = e.Status
	}
	m["location"] = e.Location
	m["uid"] = e.UID
	m["dataset_id"] = e.DatasetID
	m["dataset_refcommit"] = e.DatasetRefcommit
	return marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry{}
	scalars := map[string]*string{
		"type":              &e.Type,
		"status":            &e.Status,
		"location":          &e.Location,
		"uid":               &e.UID,
		"dataset_id":        &e.DatasetID,
		"dataset_refcommit": &e.DatasetRefcommit,
	}
	for k, v := range raw {
		if dst, ok := scalars[k]; ok {
			var s *string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			if s != nil {
				*dst = *s
			}
			continue
		}
		if f, ok := decodeField(v); ok {
			if e.Fields == nil {
				e.Fields = make(map[string]Field)
			}
			e.Fields[k] = f
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]json.RawMessage)
		}
		e.Extra[k] = v
	}
	return nil
}

// decodeField accepts objects of the {"value": ..., "approved": ...} shape.
func decodeField(data json.RawMessage) (Field, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Field{}, false
	}
	value, ok := m["value"]
	if !ok || len(m) > 2 {
		return Field{}, false
	}
	var f Field
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&f.Value); err != nil {
		return Field{}, false
	}
	if a, ok := m["approved"]; ok {
		if err := json.Unmarshal(a, &f.Approved); err != nil {
			return Field{}, false
		}
	} else if len(m) == 2 {
		return Field{}, false
	}
	return f, true
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
