package studyspec

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Converter values an entry may carry.
const (
	ConverterHeudiconv = "heudiconv"
	ConverterIgnore    = "ignore"
)

// Converters lists the converter values the entry schema accepts. Specs
// edited by hand may hold others, and consumers skip those series.
var Converters = []string{ConverterHeudiconv, ConverterIgnore}

func converterEnum() string {
	b, _ := json.Marshal(Converters)
	return string(b)
}

const fieldSchema = `{"type": "object", "required": ["value", "approved"], "properties": {"approved": {"type": "boolean"}}}`

// entrySchema describes a serialized dicomseries entry.
var entrySchema = `{
  "type": "object",
  "required": ["type", "uid", "location"],
  "properties": {
    "type": {"enum": ["dicomseries"]},
    "status": {"type": ["string", "null"]},
    "location": {"type": "string"},
    "uid": {"type": "string", "minLength": 1},
    "dataset_id": {"type": "string"},
    "dataset_refcommit": {"type": "string"},
    "description": ` + fieldSchema + `,
    "comment": ` + fieldSchema + `,
    "subject": ` + fieldSchema + `,
    "session": ` + fieldSchema + `,
    "task": ` + fieldSchema + `,
    "run": ` + fieldSchema + `,
    "modality": ` + fieldSchema + `,
    "converter": {
      "type": "object",
      "required": ["value", "approved"],
      "properties": {
        "value": {"enum": ` + converterEnum() + `},
        "approved": {"type": "boolean"}
      }
    },
    "id": ` + fieldSchema + `
  }
}`

var resolvedSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal([]byte(entrySchema), &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
})

// Validate checks the serialized form of an entry against the entry
// schema.
func Validate(e Entry) error {
	rs, err := resolvedSchema()
	if err != nil {
		return fmt.Errorf("entry schema: %w", err)
	}
	data, err := e.MarshalJSON()
	if err != nil {
		return err
	}
	var instance map[string]any
	if err := json.Unmarshal(data, &instance); err != nil {
		return err
	}
	if err := rs.Validate(instance); err != nil {
		return fmt.Errorf("entry %s: %w", e.UID, err)
	}
	return nil
}
