// Package nidmresults reports the minimal JSON summary of NIDM-Results
// packs (*.nidm.zip) as per-file metadata.
package nidmresults

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "nidmresults"

// PackSuffix marks a NIDM-Results pack.
const PackSuffix = ".nidm.zip"

// MinimalJSON is the pack member holding the summary.
const MinimalJSON = "nidm_minimal.json"

var errMultiple = errors.New("more than one NIDM result structure in pack")

// Extractor implements metadata.Extractor for NIDM-Results packs.
type Extractor struct{}

// New returns a NIDM-Results extractor.
func New() *Extractor { return &Extractor{} }

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// Metadata implements metadata.Extractor.
func (e *Extractor) Metadata(ctx context.Context, req metadata.Request) (*metadata.Result, error) {
	res := &metadata.Result{}
	if !req.Content {
		return res, nil
	}
	logger := logging.OrNop(req.Logger)

	packs := metadata.FilterSuffix(req.Paths, PackSuffix)
	blobs, err := metadata.ParallelMap(ctx, req.Workers, packs, func(_ context.Context, p string) (map[string]any, error) {
		blob, err := ReadPack(filepath.Join(req.Root, filepath.FromSlash(p)))
		if err != nil {
			logger.Warn("Failed to load NIDM results pack", zap.String("path", p), zap.Error(err))
			return nil, nil
		}
		return blob, nil
	})
	if err != nil {
		return nil, fmt.Errorf("nidmresults: %w", err)
	}
	for i, b := range blobs {
		res.AddFile(packs[i], b)
	}
	return res, nil
}

// ReadPack returns the minimal summary stored in a pack.
func ReadPack(name string) (map[string]any, error) {
	z, err := zip.OpenReader(name)
	if err != nil {
		return nil, err
	}
	defer z.Close()

	var member *zip.File
	for _, f := range z.File {
		if f.Name == MinimalJSON || strings.HasSuffix(f.Name, "/"+MinimalJSON) {
			member = f
			break
		}
	}
	if member == nil {
		return nil, fmt.Errorf("no %s in pack", MinimalJSON)
	}
	rc, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return decodeSummary(raw)
}

func decodeSummary(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MinimalJSON, err)
	}
	if list, ok := v.([]any); ok {
		if len(list) != 1 {
			return nil, errMultiple
		}
		v = list[0]
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s is not a JSON object", MinimalJSON)
	}
	return m, nil
}
