package studyspec

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/dicom"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec/rules"
)

// Action names the results produced by Dicom2Spec.
const Action = "dicom2spec"

// ErrNoDICOMMetadata is returned by Series when a dataset carries no
// DICOM metadata at all.
var ErrNoDICOMMetadata = errors.New("no DICOM metadata")

// DatasetMetadata is the dataset level metadata of one dataset, keyed by
// extractor name.
type DatasetMetadata struct {
	Path      string
	DatasetID string
	RefCommit string
	Metadata  map[string]map[string]any
}

// Series returns the image series reported by the DICOM extractor.
func (m DatasetMetadata) Series() ([]rules.Series, error) {
	md, ok := m.Metadata[dicom.Name]
	if !ok {
		return nil, ErrNoDICOMMetadata
	}
	raw, _ := md["Series"].([]any)
	series := make([]rules.Series, 0, len(raw))
	for _, s := range raw {
		if rec, ok := s.(map[string]any); ok {
			series = append(series, rec)
		}
	}
	return series, nil
}

// Source provides dataset level metadata for paths.
type Source interface {
	DatasetMetadata(ctx context.Context, path string) (DatasetMetadata, error)
}

// ExtractSource extracts metadata on demand.
type ExtractSource struct {
	Extractors []metadata.Extractor
	Workers    int
	Logger     *zap.Logger
}

// DatasetMetadata implements Source by running the extractors over path.
func (s ExtractSource) DatasetMetadata(ctx context.Context, path string) (DatasetMetadata, error) {
	runner := metadata.Runner{Extractors: s.Extractors, Workers: s.Workers, Logger: s.Logger}
	outcomes, err := runner.Run(ctx, path)
	if err != nil {
		return DatasetMetadata{}, err
	}
	md := DatasetMetadata{
		Path:      path,
		DatasetID: dataset.ID(ctx, path),
		RefCommit: dataset.RefCommit(ctx, path),
		Metadata:  make(map[string]map[string]any),
	}
	for _, o := range outcomes {
		if o.Err == nil && o.Result != nil {
			md.Metadata[o.Extractor] = o.Result.Dataset
		}
	}
	return md, nil
}

// AddToSpec merges the series of one dataset into spec. Entries are matched
// by series UID; a match is updated in place, anything else is appended.
func AddToSpec(md DatasetMetadata, spec []Entry, logger *zap.Logger) []Entry {
	logger = logging.OrNop(logger)
	series, _ := md.Series()
	logger.Debug("Discovered image series", zap.Int("series", len(series)))

	base := make([]Entry, len(series))
	for i, s := range series {
		converter := ConverterIgnore
		if rules.SeriesIsValid(s) {
			converter = ConverterHeudiconv
		}
		base[i] = Entry{
			Type:             TypeDICOMSeries,
			Location:         md.Path,
			UID:              rules.Text(s["SeriesInstanceUID"]),
			DatasetID:        md.DatasetID,
			DatasetRefcommit: md.RefCommit,
		}
		base[i].Set("converter", converter)
	}

	for _, rule := range rules.For(series) {
		for i, values := range rule.Apply(series) {
			if i >= len(base) {
				break
			}
			for k, v := range values {
				base[i].Set(k, v)
			}
		}
	}

	for _, e := range base {
		idx := -1
		for i := range spec {
			if spec[i].UID == e.UID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			logger.Debug("Updating existing spec for image series", zap.String("uid", e.UID))
			spec[idx].update(e)
			continue
		}
		logger.Debug("Creating spec for image series", zap.String("uid", e.UID))
		spec = append(spec, e)
	}
	return spec
}

// Options configures Dicom2Spec.
type Options struct {
	// Dataset is the root of the dataset the specification belongs to.
	Dataset string
	// Paths hold DICOM datasets; relative paths are taken from Dataset.
	Paths []string
	// Spec is the specification file; a relative path is taken from Dataset.
	Spec   string
	Source Source
	// NoCommit leaves the specification uncommitted.
	NoCommit bool
	Logger   *zap.Logger
}

// Dicom2Spec derives specification entries from the DICOM metadata of each
// path and stores them in the specification file.
func Dicom2Spec(ctx context.Context, opts Options) ([]dataset.Result, error) {
	logger := logging.OrNop(opts.Logger)
	if len(opts.Paths) == 0 {
		return nil, errors.New("insufficient arguments for dicom2spec: a path is required")
	}
	if opts.Spec == "" {
		return nil, errors.New("insufficient arguments for dicom2spec: a file is required")
	}
	if opts.Dataset != "" {
		root, err := filepath.Abs(opts.Dataset)
		if err != nil {
			return nil, err
		}
		opts.Dataset = root
	}
	source := opts.Source
	if source == nil {
		source = ExtractSource{Extractors: []metadata.Extractor{dicom.New(0)}, Logger: logger}
	}
	specPath := resolve(opts.Dataset, opts.Spec)

	spec, err := Load(specPath)
	if err != nil {
		return nil, err
	}

	var results []dataset.Result
	foundSome := false
	for _, p := range opts.Paths {
		p = resolve(opts.Dataset, p)
		md, err := source.DatasetMetadata(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			results = append(results, dataset.Result{
				Action: Action, Status: dataset.StatusError, Path: p, Type: "dataset",
				Message: err.Error(),
			})
			continue
		}
		series, err := md.Series()
		if errors.Is(err, ErrNoDICOMMetadata) {
			results = append(results, dataset.Result{
				Action: Action, Status: dataset.StatusNotNeeded, Path: p, Type: "dataset",
				Message: fmt.Sprintf("found no DICOM metadata for %s", p),
			})
			continue
		}
		if len(series) == 0 {
			results = append(results, dataset.Result{
				Action: Action, Status: dataset.StatusImpossible, Path: p, Type: "dataset",
				Message: fmt.Sprintf("no image series detected in DICOM metadata of %s", p),
			})
			continue
		}
		foundSome = true
		spec = AddToSpec(md, spec, logger)
	}

	if !foundSome {
		return append(results, dataset.Result{
			Action: Action, Status: dataset.StatusImpossible, Path: opts.Dataset, Type: "file",
			Message: "found no DICOM metadata",
		}), nil
	}

	logger.Debug("Storing specification", zap.String("spec", specPath))
	if err := Save(specPath, spec); err != nil {
		return results, err
	}

	res := dataset.Result{Action: Action, Status: dataset.StatusOK, Path: specPath, Type: "file"}
	if !opts.NoCommit && opts.Dataset != "" && dataset.IsRepo(opts.Dataset) && dataset.HasGit() {
		rel, err := filepath.Rel(opts.Dataset, specPath)
		if err != nil {
			return results, err
		}
		msg := "[DATALAD-NI] Added study specification snippet for " + opts.Dataset
		committed, err := dataset.Commit(ctx, opts.Dataset, msg, rel)
		if err != nil {
			res.Status = dataset.StatusError
			res.Message = err.Error()
		} else if !committed {
			res.Status = dataset.StatusNotNeeded
		}
	}
	return append(results, res), nil
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) || root == "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return p
		}
		return abs
	}
	return filepath.Join(root, p)
}
