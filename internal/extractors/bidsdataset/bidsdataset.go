// Package bidsdataset reports dataset-level information of a BIDS dataset
// found anywhere below the dataset root: its description, README texts,
// the values of every entity and the participant variables.
package bidsdataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/extractors/bids"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "bids_dataset"

// Version of the reported metadata layout. It is recorded with every
// result together with ID.
const Version = "0.0.1"

// ID identifies this extractor across versions.
var ID = uuid.MustParse("a05726b7-86e0-408c-a0ef-08f3d85df47b")

// ErrNoDescription is returned when no dataset_description.json exists.
var ErrNoDescription = errors.New("the file 'dataset_description.json' should be part of the BIDS dataset in order for the 'bids_dataset' extractor to function correctly")

// Context is the JSON-LD context of the reported metadata.
func Context() map[string]any {
	return metadata.Vocabulary(
		"https://doi.org/10.5281/zenodo.4710751",
		"ad-hoc vocabulary for the Brain Imaging Data Structure (BIDS) standard v1.6.0")
}

// Extractor implements metadata.Extractor for BIDS dataset-level metadata.
type Extractor struct{}

// New returns a bids_dataset extractor.
func New() *Extractor { return &Extractor{} }

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// Metadata implements metadata.Extractor. Content is not used.
func (e *Extractor) Metadata(ctx context.Context, req metadata.Request) (*metadata.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := logging.OrNop(req.Logger)
	logger.Info("Start bids_dataset metadata extraction", zap.String("dataset", req.Root))

	rel, err := FindRoot(req.Paths, logger)
	if err != nil {
		return nil, err
	}
	bidsRoot := filepath.Join(req.Root, filepath.FromSlash(rel))

	meta, err := bids.ReadDescription(bidsRoot)
	if err != nil {
		return nil, fmt.Errorf("bids_dataset: %w", err)
	}
	meta["description"] = readmes(req.Root, req.Paths)

	var sub []string
	for _, p := range req.Paths {
		if rel == "." {
			sub = append(sub, p)
		} else if s, ok := strings.CutPrefix(p, rel+"/"); ok {
			sub = append(sub, s)
		}
	}
	layout := bids.NewLayout(bidsRoot, sub)
	entities := make(map[string]any)
	for _, ent := range bids.Entities {
		if vals := layout.Values(ent); len(vals) > 0 {
			entities[ent] = vals
		}
	}
	meta["entities"] = entities

	variables := make(map[string]any)
	header, _, err := bids.ReadParticipants(bidsRoot)
	if err != nil {
		logger.Warn("Cannot read participants table", zap.Error(err))
	}
	if len(header) > 0 {
		cols := make([]string, 0, len(header))
		for _, h := range header {
			if h == "participant_id" {
				h = "subject"
			}
			cols = append(cols, h)
		}
		sort.Strings(cols)
		variables["dataset"] = cols
	}
	meta["variables"] = variables
	meta["@context"] = Context()
	meta["extractor_id"] = ID.String()
	meta["extractor_version"] = Version

	logger.Info("Finished bids_dataset metadata extraction", zap.String("bids_root", bidsRoot))
	return &metadata.Result{Dataset: meta}, nil
}

// FindRoot returns the directory of the shallowest dataset_description.json
// among paths, "." for the dataset root.
func FindRoot(paths []string, logger *zap.Logger) (string, error) {
	var found []string
	for _, p := range paths {
		if path.Base(p) == bids.DescriptionFile {
			found = append(found, path.Dir(p))
		}
	}
	if len(found) == 0 {
		return "", ErrNoDescription
	}
	sort.SliceStable(found, func(i, j int) bool {
		di, dj := depth(found[i]), depth(found[j])
		if di != dj {
			return di < dj
		}
		return found[i] < found[j]
	})
	if len(found) > 1 {
		logging.OrNop(logger).Warn("Multiple dataset_description.json files found, selecting the first",
			zap.Int("count", len(found)), zap.String("selected", found[0]))
	}
	return found[0], nil
}

func depth(dir string) int {
	if dir == "." {
		return 0
	}
	return strings.Count(dir, "/") + 1
}

// readmes collects the text of every top-level README* file, nil when there
// is none.
func readmes(root string, paths []string) any {
	var out []any
	for _, p := range paths {
		if strings.Contains(p, "/") || !strings.HasPrefix(strings.ToLower(p), "readme") {
			continue
		}
		text := ""
		if b, err := os.ReadFile(filepath.Join(root, p)); err == nil {
			text = strings.TrimSpace(strings.ToValidUTF8(string(b), "\uFFFD"))
		}
		out = append(out, map[string]any{"extension": filepath.Ext(p), "text": text})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
