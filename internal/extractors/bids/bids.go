// Package bids reports metadata of datasets following the Brain Imaging
// Data Structure (http://bids.neuroimaging.io): the dataset description,
// plus per-file entities, sidecar values and participant information.
package bids

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "bids"

var descriptionKeys = map[string]string{
	"Name":               "name",
	"License":            "license",
	"Authors":            "author",
	"ReferencesAndLinks": "citation",
	"Funding":            "fundedby",
	"Description":        "description",
}

// participants.tsv columns with a standard key
var participantKeys = map[string]string{
	"participant_id": "id",
	"age":            "age(years)",
}

var sexLabels = map[string]string{
	"f": "female",
	"m": "male",
}

var readmeNames = []string{"README", "README.md", "README.txt", "README.rst"}

// Vocabulary holds the terms this extractor defines beyond the BIDS
// vocabulary itself.
func Vocabulary() map[string]any {
	return map[string]any{
		"age(years)": map[string]any{
			"@id":         "pato:0000011",
			"unit":        "uo:0000036",
			"unit_label":  "year",
			"description": "age of a sample (organism) at the time of data acquisition in years",
		},
	}
}

// ConformsTo returns the definition URL of a BIDS version.
func ConformsTo(version string) string {
	u := "http://bids.neuroimaging.io"
	if version != "" {
		u += "/bids_spec" + version + ".pdf"
	}
	return u
}

// Extractor implements metadata.Extractor for BIDS datasets.
type Extractor struct{}

// New returns a BIDS extractor.
func New() *Extractor { return &Extractor{} }

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// Metadata implements metadata.Extractor.
func (e *Extractor) Metadata(ctx context.Context, req metadata.Request) (*metadata.Result, error) {
	logger := logging.OrNop(req.Logger)

	dsmeta, err := DatasetMetadata(req.Root)
	if err != nil {
		return nil, err
	}
	res := &metadata.Result{Dataset: dsmeta}
	if !req.Content {
		return res, nil
	}

	subjects, err := ParticipantInfo(req.Root)
	if err != nil {
		logger.Warn("Failed to load participants info, skipping it", zap.Error(err))
		subjects = nil
	}

	logger.Info("Start BIDS metadata extraction", zap.String("dataset", req.Root), zap.Int("files", len(req.Paths)))
	layout := NewLayout(req.Root, req.Paths)
	records, err := metadata.ParallelMap(ctx, req.Workers, req.Paths, func(_ context.Context, p string) (map[string]any, error) {
		// sidecars are folded into the files they describe
		if strings.HasSuffix(p, ".json") {
			return nil, nil
		}
		md, err := FileMetadata(layout, p)
		if err != nil {
			logger.Debug("No usable BIDS metadata", zap.String("path", p), zap.Error(err))
			md = make(map[string]any)
		}
		for id, info := range subjects {
			if strings.HasPrefix(p, "sub-"+id+"/") {
				md["subject"] = info
				break
			}
		}
		return md, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	for i, md := range records {
		res.AddFile(req.Paths[i], md)
	}
	logger.Info("Finished BIDS metadata extraction", zap.String("dataset", req.Root), zap.Int("files", len(res.Files)))
	return res, nil
}

// DatasetMetadata reads the dataset description under root and maps it to
// standard keys.
func DatasetMetadata(root string) (map[string]any, error) {
	desc, err := ReadDescription(root)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	meta := make(map[string]any, len(desc)+2)
	for k, v := range desc {
		if std, ok := descriptionKeys[k]; ok {
			k = std
		}
		meta[k] = v
	}

	if d, _ := meta["description"].(string); d == "" {
		for _, name := range readmeNames {
			b, err := os.ReadFile(filepath.Join(root, name))
			if err != nil {
				continue
			}
			meta["description"] = strings.TrimSpace(strings.ToValidUTF8(string(b), "\uFFFD"))
			break
		}
	}

	version, _ := meta["BIDSVersion"].(string)
	defURL := ConformsTo(strings.TrimSpace(version))
	meta["conformsto"] = defURL

	jsonld := map[string]any{
		// not a working URL, BIDS has no accessible term definitions
		"bids": metadata.Vocabulary(defURL+"#",
			"ad-hoc vocabulary for the Brain Imaging Data Structure (BIDS) standard"),
	}
	for k, v := range Vocabulary() {
		jsonld[k] = v
	}
	meta["@context"] = jsonld
	return meta, nil
}

// FileMetadata combines the entities of p with the scalar and list values
// of the sidecars that apply to it.
func FileMetadata(layout *Layout, p string) (map[string]any, error) {
	ents, ok := layout.Entities(p)
	if !ok {
		return nil, errors.New("not a BIDS file")
	}
	side, err := layout.Metadata(p)
	if err != nil {
		return nil, err
	}
	md := make(map[string]any, len(side)+len(ents))
	for k, v := range side {
		// no nested structures, embedded DICOM headers can be huge
		if _, nested := v.(map[string]any); nested {
			continue
		}
		md[k] = v
	}
	for k, v := range ents {
		md[k] = v
	}
	return md, nil
}

// ParticipantInfo maps participant IDs to their normalized
// participants.tsv records.
func ParticipantInfo(root string) (map[string]map[string]any, error) {
	header, rows, err := ReadParticipants(root)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		props := map[string]any{"id": row.ID}
		for _, col := range header {
			if col == "participant_id" {
				continue
			}
			val, present := row.Fields[col]
			if !present {
				continue
			}
			key := strings.ToLower(col)
			if std, ok := participantKeys[key]; ok {
				key = std
			}
			if key == "sex" || key == "gender" {
				val = strings.ToLower(val)
				if l, ok := sexLabels[val]; ok {
					val = l
				}
				if val != "" {
					props[key] = val
				}
				continue
			}
			if val == "" || val == "n/a" {
				continue
			}
			props[key] = convertCell(val)
		}
		out[row.ID] = props
	}
	return out, nil
}

func convertCell(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(strings.ToLower(s), "ni") {
		return f
	}
	return s
}
