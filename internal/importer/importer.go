// Package importer creates study datasets and imports DICOM archives into
// them.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/dicom"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec/rules"
)

const (
	// ContainerEnv overrides the import container source.
	ContainerEnv = "DATALAD_CONTAINER"
	// ContainerPath is where create-study installs the import container.
	ContainerPath = ".datalad/environments/import-container"
	// SpecFile is the study specification written per session.
	SpecFile = "studyspec.json"
	// DICOMMaxFieldSize is configured in every imported DICOM dataset.
	DICOMMaxFieldSize = 10000000
)

var errGitRequired = errors.New("git is required to create datasets")

// Aggregator stores the metadata of a dataset.
type Aggregator interface {
	Aggregate(ctx context.Context, root string) error
}

// CreateOptions configures CreateStudy.
type CreateOptions struct {
	Path string
	// ContainerURL is used when DATALAD_CONTAINER is unset. With neither,
	// no container is installed.
	ContainerURL string
	Logger       *zap.Logger
}

// CreateStudy creates a raw study dataset at Path and installs the import
// container into it.
func CreateStudy(ctx context.Context, opts CreateOptions) ([]dataset.Result, error) {
	logger := logging.OrNop(opts.Logger)
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, err
	}
	var results []dataset.Result
	created, err := initDataset(ctx, root, "")
	if err != nil {
		return nil, err
	}
	status := dataset.StatusOK
	if !created {
		status = dataset.StatusNotNeeded
	}
	results = append(results, dataset.Result{Action: "create", Status: status, Path: root, Type: "dataset"})

	source := os.Getenv(ContainerEnv)
	if source == "" {
		source = opts.ContainerURL
	}
	container := filepath.Join(root, filepath.FromSlash(ContainerPath))
	switch {
	case source == "":
		logger.Debug("No import container configured, skipped")
	case isDataset(container):
		results = append(results, dataset.Result{Action: "install", Status: dataset.StatusNotNeeded, Path: container, Type: "dataset"})
	default:
		logger.Info("Installing import container", zap.String("source", source))
		if err := dataset.Clone(ctx, source, container); err != nil {
			return results, fmt.Errorf("install import container: %w", err)
		}
		if err := registerSubdataset(ctx, root, ContainerPath, source); err != nil {
			return results, err
		}
		if _, err := dataset.Commit(ctx, root, "[DATALAD] Added import container", ".gitmodules", ContainerPath); err != nil {
			return results, err
		}
		results = append(results, dataset.Result{Action: "install", Status: dataset.StatusOK, Path: container, Type: "dataset"})
	}

	return append(results, dataset.Result{
		Action: "create study raw dataset", Status: dataset.StatusOK, Path: root, Type: "dataset",
	}), nil
}

// ImportOptions configures ImportDICOMs.
type ImportOptions struct {
	Dataset string
	Archive string
	// Session names the target directory. When empty it is derived from the
	// DICOM headers.
	Session    string
	Aggregator Aggregator
	Logger     *zap.Logger
}

// ImportDICOMs extracts a DICOM archive into SESSION/dicoms as a dataset of
// its own and prefills SESSION/studyspec.json from its headers.
func ImportDICOMs(ctx context.Context, opts ImportOptions) (results []dataset.Result, err error) {
	logger := logging.OrNop(opts.Logger)
	root, err := filepath.Abs(opts.Dataset)
	if err != nil {
		return nil, err
	}
	archive, err := filepath.Abs(opts.Archive)
	if err != nil {
		return nil, err
	}

	session := opts.Session
	var sesDir, tmpDir string
	if session != "" {
		sesDir = filepath.Join(root, session)
		if err := os.MkdirAll(sesDir, 0o755); err != nil {
			return nil, err
		}
	} else {
		tmpDir, err = os.MkdirTemp(root, ".import-")
		if err != nil {
			return nil, err
		}
		sesDir = tmpDir
		// Only the staging directory is removed on failure. Once renamed it
		// holds the user's session.
		defer func() {
			if err != nil && tmpDir != "" {
				os.RemoveAll(tmpDir)
			}
		}()
	}

	dicomDir := filepath.Join(sesDir, "dicoms")
	n, err := Extract(archive, dicomDir)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", archive, err)
	}
	logger.Info("Extracted DICOM archive", zap.String("archive", archive), zap.Int("files", n))

	if session == "" {
		session, err = GuessSession(dicomDir, logger)
		if err != nil {
			return nil, err
		}
		final := filepath.Join(root, session)
		if _, err := os.Stat(final); err == nil {
			return nil, fmt.Errorf("session directory %s already exists", final)
		}
		if err := os.Rename(sesDir, final); err != nil {
			return nil, err
		}
		sesDir, tmpDir = final, ""
		dicomDir = filepath.Join(sesDir, "dicoms")
		logger.Info("Guessed session from DICOM headers", zap.String("session", session))
	}

	if _, err := initDataset(ctx, dicomDir, "dicom"); err != nil {
		return nil, err
	}
	for key, value := range map[string]string{
		"datalad.metadata.aggregate-content-dicom": "false",
		"datalad.metadata.maxfieldsize":            fmt.Sprint(DICOMMaxFieldSize),
	} {
		if err := dataset.ConfigSet(ctx, dicomDir, key, value); err != nil {
			return nil, err
		}
	}
	if _, err := dataset.Commit(ctx, dicomDir, "Extracted "+filepath.Base(archive)); err != nil {
		return nil, err
	}
	results = append(results, dataset.Result{Action: "import_dicoms", Status: dataset.StatusOK, Path: dicomDir, Type: "dataset"})

	relDicoms := path.Join(filepath.ToSlash(session), "dicoms")
	if dataset.IsRepo(root) {
		if err := registerSubdataset(ctx, root, relDicoms, "./"+relDicoms); err != nil {
			return results, err
		}
		if _, err := dataset.Commit(ctx, root, "[DATALAD-NI] Imported DICOM session "+session, ".gitmodules", relDicoms); err != nil {
			return results, err
		}
	}

	if opts.Aggregator != nil {
		if err := opts.Aggregator.Aggregate(ctx, dicomDir); err != nil {
			return results, fmt.Errorf("aggregate metadata: %w", err)
		}
		results = append(results, dataset.Result{Action: "aggregate_metadata", Status: dataset.StatusOK, Path: dicomDir, Type: "dataset"})
	}

	specResults, err := studyspec.Dicom2Spec(ctx, studyspec.Options{
		Dataset: root,
		Paths:   []string{dicomDir},
		Spec:    filepath.Join(session, SpecFile),
		Source: studyspec.ExtractSource{
			Extractors: []metadata.Extractor{dicom.New(DICOMMaxFieldSize)},
			Logger:     logger,
		},
		Logger: logger,
	})
	return append(results, specResults...), err
}

// GuessSession derives a session label from the first readable DICOM file:
// its StudyID, or else its PatientID.
func GuessSession(dir string, logger *zap.Logger) (string, error) {
	logger = logging.OrNop(logger)
	paths, err := metadata.ListFiles(dir)
	if err != nil {
		return "", err
	}
	ex := dicom.New(0)
	for _, p := range paths {
		rec, err := ex.ReadFile(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil {
			logger.Debug("Not usable for session guessing", zap.String("path", p), zap.Error(err))
			continue
		}
		for _, key := range []string{"StudyID", "PatientID"} {
			if s := rules.Sanitize(rules.Text(rec[key])); s != "" {
				return s, nil
			}
		}
	}
	return "", errors.New("could not derive a session from DICOM headers, please specify one")
}

// initDataset turns dir into a git repository with a dataset id.
func initDataset(ctx context.Context, dir, nativeType string) (bool, error) {
	if !dataset.HasGit() {
		return false, errGitRequired
	}
	created, err := dataset.Init(ctx, dir)
	if err != nil {
		return false, err
	}
	if dataset.ID(ctx, dir) == "" {
		created = true
		if err := dataset.ConfigSet(ctx, dir, dataset.IDKey, uuid.NewString()); err != nil {
			return false, err
		}
		if nativeType != "" {
			if err := dataset.ConfigAdd(ctx, dir, "datalad.metadata.nativetype", nativeType); err != nil {
				return false, err
			}
		}
		if _, err := dataset.Commit(ctx, dir, "[DATALAD] new dataset", dataset.ConfigFile); err != nil {
			return false, err
		}
	}
	return created, nil
}

// registerSubdataset records rel as a submodule of root in .gitmodules.
func registerSubdataset(ctx context.Context, root, rel, url string) error {
	gitmodules := filepath.Join(root, ".gitmodules")
	for key, value := range map[string]string{
		"submodule." + rel + ".path": rel,
		"submodule." + rel + ".url":  url,
	} {
		if _, err := dataset.Git(ctx, root, "config", "--file", gitmodules, key, value); err != nil {
			return err
		}
	}
	return nil
}

func isDataset(dir string) bool {
	for _, marker := range []string{".git", dataset.ConfigDir} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
