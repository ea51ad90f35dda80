package store

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Aggregator extracts the metadata of a dataset and stores it.
type Aggregator struct {
	Store      *Store
	Extractors []metadata.Extractor
	// Content requests per-file metadata. Extractors named in NoContent
	// keep their file records out of the store but still contribute
	// unique content properties.
	Content   bool
	NoContent map[string]bool
	Workers   int
	Logger    *zap.Logger
	// Mirrors receive the same records as Store. A subdataset aggregated
	// into its superdataset also keeps them in its own store.
	Mirrors []*Store

	// ProgressCallback, if set, is called after each extractor finishes.
	ProgressCallback func(done, total int, name string)
}

// Aggregate runs every extractor over root and replaces the stored
// metadata of root. Failing extractors are logged and left out.
func (a *Aggregator) Aggregate(ctx context.Context, root string) error {
	_, err := a.AggregateOutcomes(ctx, root)
	return err
}

// AggregateOutcomes is Aggregate, also returning the per-extractor outcomes.
func (a *Aggregator) AggregateOutcomes(ctx context.Context, root string) ([]metadata.Outcome, error) {
	logger := logging.OrNop(a.Logger)
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	runner := metadata.Runner{
		Extractors:       a.Extractors,
		Workers:          a.Workers,
		Content:          a.Content,
		Logger:           logger,
		ProgressCallback: a.ProgressCallback,
	}
	outcomes, err := runner.Run(ctx, root)
	if err != nil {
		return nil, err
	}

	ds := Record{
		Root:      root,
		DatasetID: dataset.ID(ctx, root),
		RefCommit: dataset.RefCommit(ctx, root),
		Metadata:  make(map[string]map[string]any),
		Unique:    make(map[string]map[string][]any),
	}
	byPath := make(map[string]*Record)
	var order []string
	for i, o := range outcomes {
		if o.Err != nil || o.Result == nil {
			continue
		}
		if o.Result.Dataset != nil {
			ds.Metadata[o.Extractor] = o.Result.Dataset
		}
		if len(o.Result.Files) == 0 {
			continue
		}
		var exclude []string
		if ue, ok := a.Extractors[i].(metadata.UniqueExcluder); ok {
			exclude = ue.UniqueExclude()
		}
		mds := make([]map[string]any, 0, len(o.Result.Files))
		for _, f := range o.Result.Files {
			mds = append(mds, f.Metadata)
		}
		if u := UniqueProperties(mds, exclude); len(u) > 0 {
			ds.Unique[o.Extractor] = u
		}
		if a.NoContent[o.Extractor] {
			continue
		}
		for _, f := range o.Result.Files {
			rec, ok := byPath[f.Path]
			if !ok {
				rec = &Record{Root: root, Path: f.Path, Metadata: make(map[string]map[string]any)}
				byPath[f.Path] = rec
				order = append(order, f.Path)
			}
			rec.Metadata[o.Extractor] = f.Metadata
		}
	}

	files := make([]Record, 0, len(order))
	for _, p := range order {
		files = append(files, *byPath[p])
	}
	for _, st := range append([]*Store{a.Store}, a.Mirrors...) {
		if err := st.Put(ctx, ds, files); err != nil {
			return nil, fmt.Errorf("store metadata of %s in %s: %w", root, st.Path(), err)
		}
	}
	logger.Info("Aggregated metadata",
		zap.String("dataset", root),
		zap.Int("extractors", len(ds.Metadata)),
		zap.Int("files", len(files)))
	return outcomes, nil
}
