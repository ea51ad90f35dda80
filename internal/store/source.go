package store

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

// Source serves aggregated dataset metadata to dicom2spec. Datasets that
// were never aggregated are handed to Fallback when it is set.
type Source struct {
	Store    *Store
	Fallback studyspec.Source
}

// DatasetMetadata implements studyspec.Source.
func (s Source) DatasetMetadata(ctx context.Context, path string) (studyspec.DatasetMetadata, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return studyspec.DatasetMetadata{}, err
	}
	rec, err := s.Store.Get(ctx, root, "")
	if errors.Is(err, ErrNotAggregated) && s.Fallback != nil {
		return s.Fallback.DatasetMetadata(ctx, path)
	}
	if err != nil {
		return studyspec.DatasetMetadata{}, err
	}
	return studyspec.DatasetMetadata{
		Path:      path,
		DatasetID: rec.DatasetID,
		RefCommit: rec.RefCommit,
		Metadata:  rec.Metadata,
	}, nil
}
