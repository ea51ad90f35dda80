// Package minc reports the header attributes of MINC images. MINC1 files
// are NetCDF classic; MINC2 files are HDF5.
package minc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "minc"

// GlobalGroup holds MINC1 global attributes.
const GlobalGroup = "global"

// Extractor implements metadata.Extractor for MINC files.
type Extractor struct {
	// MINC2 reads HDF5-based files; nil uses HDF5Reader.
	MINC2 HeaderReader
}

// New returns a MINC extractor.
func New() *Extractor { return &Extractor{MINC2: HDF5Reader{}} }

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// Metadata implements metadata.Extractor. Only files ending in .mnc are
// considered.
func (e *Extractor) Metadata(ctx context.Context, req metadata.Request) (*metadata.Result, error) {
	logger := logging.OrNop(req.Logger)
	files := metadata.FilterSuffix(req.Paths, ".mnc")

	records, err := metadata.ParallelMap(ctx, req.Workers, files, func(_ context.Context, p string) (map[string]any, error) {
		groups, err := e.ReadFile(filepath.Join(req.Root, filepath.FromSlash(p)))
		if err != nil {
			logger.Warn("Cannot read MINC header", zap.String("path", p), zap.Error(err))
			return nil, nil
		}
		return Record(groups, logger.With(zap.String("path", p))), nil
	})
	if err != nil {
		return nil, fmt.Errorf("minc: %w", err)
	}
	res := &metadata.Result{Dataset: map[string]any{}}
	for i, rec := range records {
		res.AddFile(files[i], rec)
	}
	return res, nil
}

// ReadFile reads the attribute groups of a MINC1 or MINC2 file.
func (e *Extractor) ReadFile(name string) ([]Group, error) {
	hdf, err := sniffHDF5(name)
	if err != nil {
		return nil, err
	}
	if hdf {
		r := e.MINC2
		if r == nil {
			r = HDF5Reader{}
		}
		return r.ReadGroups(name)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	groups, err := ReadNetCDFHeader(f)
	if errors.Is(err, errNotNetCDF) {
		return nil, errors.New("neither MINC1 (NetCDF) nor MINC2 (HDF5)")
	}
	return groups, err
}

// Record converts attribute groups into a two-level metadata record,
// keeping text attributes only.
func Record(groups []Group, logger *zap.Logger) map[string]any {
	logger = logging.OrNop(logger)
	rec := make(map[string]any, len(groups))
	for _, g := range groups {
		if len(g.Attrs) == 0 {
			continue
		}
		sub, _ := rec[g.Name].(map[string]any)
		if sub == nil {
			sub = make(map[string]any, len(g.Attrs))
		}
		for _, a := range g.Attrs {
			if !a.IsText {
				logger.Debug("Skipped non-text attribute", zap.String("group", g.Name), zap.String("attribute", a.Name))
				continue
			}
			sub[a.Name] = a.Text
		}
		rec[g.Name] = sub
	}
	return rec
}
