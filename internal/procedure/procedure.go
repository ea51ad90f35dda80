// Package procedure holds dataset configuration procedures.
package procedure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
)

// Action names the results produced by procedures.
const Action = "run_procedure"

// NativeTypeKey lists the metadata extractors enabled for a dataset.
const NativeTypeKey = "datalad.metadata.nativetype"

// Func applies a procedure to the dataset at root.
type Func func(ctx context.Context, root string, args []string, logger *zap.Logger) (dataset.Result, error)

var procedures = map[string]Func{
	"cfg_bids_dataset":  BIDSDataset,
	"cfg_metadatatypes": MetadataTypes,
}

// Names returns the available procedure names.
func Names() []string {
	names := make([]string, 0, len(procedures))
	for n := range procedures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run applies the named procedure.
func Run(ctx context.Context, root, name string, args []string, logger *zap.Logger) (dataset.Result, error) {
	fn, ok := procedures[name]
	if !ok {
		return dataset.Result{}, fmt.Errorf("unknown procedure %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return fn(ctx, root, args, logging.OrNop(logger))
}

// forceInGit are kept out of the annex in BIDS datasets.
var forceInGit = []string{"README", "CHANGES", "dataset_description.json", ".bidsignore"}

// BIDSDataset keeps the BIDS top-level files in git and enables the bids
// and nifti1 extractors. Running it again changes nothing.
func BIDSDataset(ctx context.Context, root string, _ []string, logger *zap.Logger) (dataset.Result, error) {
	attrPath := filepath.Join(root, ".gitattributes")
	data, err := os.ReadFile(attrPath)
	if err != nil && !os.IsNotExist(err) {
		return dataset.Result{}, err
	}
	attrs := string(data)
	var add []string
	for _, p := range forceInGit {
		line := p + " annex.largefiles=nothing"
		if !strings.Contains(attrs, line) {
			add = append(add, line)
		}
	}
	if len(add) > 0 {
		if attrs != "" && !strings.HasSuffix(attrs, "\n") {
			attrs += "\n"
		}
		attrs += strings.Join(add, "\n") + "\n"
		if err := os.WriteFile(attrPath, []byte(attrs), 0o644); err != nil {
			return dataset.Result{}, err
		}
		logger.Debug("Amended .gitattributes", zap.Int("entries", len(add)))
		if err := commit(ctx, root, "Apply default BIDS dataset setup", ".gitattributes"); err != nil {
			return dataset.Result{}, err
		}
	}

	res, err := MetadataTypes(ctx, root, []string{"bids", "nifti1"}, logger)
	if err != nil {
		return dataset.Result{}, err
	}
	status := dataset.StatusNotNeeded
	if len(add) > 0 || res.Status == dataset.StatusOK {
		status = dataset.StatusOK
	}
	return dataset.Result{Action: Action, Status: status, Path: root, Type: "dataset", Message: "cfg_bids_dataset"}, nil
}

// MetadataTypes enables the named extractors in the dataset configuration.
func MetadataTypes(ctx context.Context, root string, types []string, logger *zap.Logger) (dataset.Result, error) {
	existing, err := dataset.ConfigGetAll(ctx, root, NativeTypeKey)
	if err != nil {
		return dataset.Result{}, err
	}
	added := 0
	for _, t := range types {
		if slices.Contains(existing, t) {
			continue
		}
		if err := dataset.ConfigAdd(ctx, root, NativeTypeKey, t); err != nil {
			return dataset.Result{}, err
		}
		existing = append(existing, t)
		added++
	}
	if added == 0 {
		return dataset.Result{Action: Action, Status: dataset.StatusNotNeeded, Path: root, Type: "dataset", Message: "cfg_metadatatypes"}, nil
	}
	logger.Debug("Enabled metadata types", zap.Strings("types", types))
	if err := commit(ctx, root, "Configure metadata type(s)", dataset.ConfigFile); err != nil {
		return dataset.Result{}, err
	}
	return dataset.Result{Action: Action, Status: dataset.StatusOK, Path: root, Type: "dataset", Message: "cfg_metadatatypes"}, nil
}

func commit(ctx context.Context, root, message string, paths ...string) error {
	if !dataset.IsRepo(root) {
		return nil
	}
	_, err := dataset.Commit(ctx, root, message, paths...)
	return err
}
