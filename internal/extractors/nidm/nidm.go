// Package nidm is a demonstration extractor. It reports a fixed NIDM
// record and shows how an extractor declares its own vocabulary.
package nidm

import (
	"context"

	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "nidm"

// Extractor implements metadata.Extractor.
type Extractor struct{}

// New returns the demo NIDM extractor.
func New() *Extractor { return &Extractor{} }

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// Metadata implements metadata.Extractor.
func (e *Extractor) Metadata(ctx context.Context, _ metadata.Request) (*metadata.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &metadata.Result{Dataset: map[string]any{
		"@context": map[string]any{
			"mydurationkey": map[string]any{"@id": "time:Duration"},
			"myvocabprefix": metadata.Vocabulary("http://purl.org/ontology/mydefinition", "I am a vocabulary"),
		},
		"mydurationkey": 0.6,
	}}, nil
}
