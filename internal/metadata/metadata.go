// Package metadata defines the extractor contract shared by all native
// metadata extractors, plus the registry and the runner that drives them
// over a dataset.
package metadata

import (
	"context"

	"go.uber.org/zap"
)

// VocabularyID marks a JSON-LD context entry as a vocabulary.
const VocabularyID = "http://purl.org/dc/dcam/VocabularyEncodingScheme"

// Request describes one extraction run over a dataset.
type Request struct {
	// Root is the absolute dataset root.
	Root string
	// Paths are slash-separated file paths relative to Root.
	Paths []string
	// Content asks extractors to also report per-file metadata.
	Content bool
	// Workers bounds per-file parallelism inside an extractor (0 = NumCPU).
	Workers int
	Logger  *zap.Logger
}

// FileMetadata is the metadata reported for a single file.
type FileMetadata struct {
	Path     string         `json:"path"`
	Metadata map[string]any `json:"metadata"`
}

// Result is what an extractor reports for a dataset.
type Result struct {
	Dataset map[string]any `json:"dataset"`
	Files   []FileMetadata `json:"files,omitempty"`
}

// Extractor turns a dataset's native files into JSON-LD compatible metadata.
type Extractor interface {
	Name() string
	Metadata(ctx context.Context, req Request) (*Result, error)
}

// UniqueExcluder is implemented by extractors whose per-file properties
// should not be summarized as unique content properties.
type UniqueExcluder interface {
	UniqueExclude() []string
}

// Vocabulary builds a JSON-LD context entry for a vocabulary.
func Vocabulary(id, description string) map[string]any {
	return map[string]any{
		"@id":         id,
		"description": description,
		"type":        VocabularyID,
	}
}

// AddFile appends file metadata, ignoring empty records.
func (r *Result) AddFile(path string, md map[string]any) {
	if len(md) == 0 {
		return
	}
	r.Files = append(r.Files, FileMetadata{Path: path, Metadata: md})
}
