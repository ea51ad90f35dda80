// Package fslfeat reports FSL FEAT analysis configurations and their
// cluster result tables as dataset metadata.
package fslfeat

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "fslfeat"

// DesignFile is the file every FEAT analysis directory carries.
const DesignFile = "design.fsf"

// Context is the JSON-LD context reported with dataset metadata.
func Context() map[string]any {
	return map[string]any{
		// FEAT variable names have no term definitions
		"fslfeat": metadata.Vocabulary(
			"https://fsl.fmrib.ox.ac.uk/fsl/fslwiki/FEAT/",
			"non-vocabulary for FSL FEAT variables"),
	}
}

// Extractor implements metadata.Extractor for FEAT analyses.
type Extractor struct{}

// New returns a FEAT extractor.
func New() *Extractor { return &Extractor{} }

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// Metadata implements metadata.Extractor.
func (e *Extractor) Metadata(ctx context.Context, req metadata.Request) (*metadata.Result, error) {
	logger := logging.OrNop(req.Logger)
	logger.Info("Start FSL Feat metadata extraction", zap.String("dataset", req.Root))

	var designs []string
	for _, p := range req.Paths {
		if path.Base(p) != DesignFile {
			continue
		}
		designs = append(designs, p)
	}

	analyses, err := metadata.ParallelMap(ctx, req.Workers, designs, func(_ context.Context, p string) (map[string]any, error) {
		return readAnalysis(req.Root, p, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("fslfeat: %w", err)
	}

	list := make([]any, 0, len(analyses))
	for _, a := range analyses {
		if a != nil {
			list = append(list, a)
		}
	}
	logger.Info("Finished FSL Feat metadata extraction", zap.String("dataset", req.Root), zap.Int("analyses", len(list)))
	return &metadata.Result{Dataset: map[string]any{
		"@context": Context(),
		"analysis": list,
	}}, nil
}

func readAnalysis(root, design string, logger *zap.Logger) (map[string]any, error) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(design)))
	if err != nil {
		logger.Warn("Cannot read FEAT design", zap.String("path", design), zap.Error(err))
		return nil, nil
	}
	defer f.Close()

	props, err := ReadFSF(f, root, logger)
	if err != nil {
		logger.Warn("Cannot parse FEAT design", zap.String("path", design), zap.Error(err))
		return nil, nil
	}
	dir := path.Dir(design)
	props["path"] = dir

	contrasts, _ := props["contrasts"].([]any)
	for i, c := range contrasts {
		rec := c.(map[string]any)
		table := filepath.Join(root, filepath.FromSlash(dir), fmt.Sprintf("cluster_zstat%d.txt", i+1))
		clusters, err := ReadClusterTable(table)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			logger.Warn("Cannot read cluster table", zap.String("path", table), zap.Error(err))
		default:
			rec["clusters"] = clusters
		}
	}
	return props, nil
}

// ReadClusterTable reads a tab-separated cluster table into one record per
// row, keyed by column header.
func ReadClusterTable(name string) ([]any, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []any{}, nil
		}
		return nil, err
	}
	rows := []any{}
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = ConvertValue(fields[i])
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
