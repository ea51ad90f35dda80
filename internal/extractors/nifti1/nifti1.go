// Package nifti1 reports NIfTI-1 image headers as per-file metadata.
package nifti1

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "nifti1"

// UniqueExclude lists properties kept out of unique content properties.
var UniqueExclude = []string{"cal_max", "cal_min"}

type unit struct {
	label string
	term  string
}

var unitMap = map[string]unit{
	"meter":      {"meter", "uo:0000008"},
	"millimeter": {"millimeter", "uo:0000016"},
	"mm":         {"millimeter", "uo:0000016"},
	"micron":     {"micrometer", "uo:0000017"},
	"second":     {"second", "uo:0000010"},
	"sec":        {"second", "uo:0000010"},
	"msec":       {"millisecond", "uo:0000028"},
	"usec":       {"microsecond", "uo:0000029"},
	"hertz":      {"hertz", "uo:0000106"},
	"hz":         {"hertz", "uo:0000106"},
	"ppm":        {"parts per million", "uo:0000109"},
	"rad":        {"radian", "uo:0000123"},
	"rads":       {"radian", "uo:0000123"},
}

// factor to millimeter
var spatialConversion = map[string]float64{
	"unknown": 1,
	"meter":   1000,
	"mm":      1,
	"micron":  0.001,
}

// factor to seconds
var temporalConversion = map[string]float64{
	"msec": 0.001,
	"usec": 0.000001,
}

// Context is the JSON-LD context reported with dataset metadata.
func Context() map[string]any {
	return map[string]any{
		"nifti1": metadata.Vocabulary(
			"https://nifti.nimh.nih.gov/nifti-1/documentation/nifti1fields#",
			"Ad-hoc vocabulary for NIfTI1 header fields"),
		"spatial_resolution(mm)": map[string]any{
			"@id":         "idqa:0000162",
			"unit":        "uo:0000016",
			"unit_label":  "millimeter",
			"description": "spatial resolution in millimeter",
		},
		"temporal_spacing(s)": map[string]any{
			"@id":         "idqa:0000213",
			"unit":        "uo:0000010",
			"unit_label":  "second",
			"description": "temporal sample distance in 4D (in seconds)",
		},
	}
}

// Extractor implements metadata.Extractor for NIfTI-1 images.
type Extractor struct{}

// New returns a NIfTI-1 extractor.
func New() *Extractor { return &Extractor{} }

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// UniqueExclude implements the optional unique-exclusion hook.
func (e *Extractor) UniqueExclude() []string { return UniqueExclude }

// IsCandidate reports whether a path may hold a NIfTI-1 header.
func IsCandidate(p string) bool {
	p = strings.ToLower(p)
	for _, ext := range []string{".nii", ".nii.gz", ".hdr", ".hdr.gz"} {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// Metadata implements metadata.Extractor. Without content there is nothing
// to report.
func (e *Extractor) Metadata(ctx context.Context, req metadata.Request) (*metadata.Result, error) {
	res := &metadata.Result{}
	if !req.Content {
		return res, nil
	}
	logger := logging.OrNop(req.Logger)
	logger.Info("Start NIfTI1 metadata extraction", zap.String("dataset", req.Root))

	var candidates []string
	for _, p := range req.Paths {
		if IsCandidate(p) {
			candidates = append(candidates, p)
		}
	}

	records, err := metadata.ParallelMap(ctx, req.Workers, candidates, func(_ context.Context, p string) (map[string]any, error) {
		h, err := ReadHeaderFile(path.Join(req.Root, p))
		if err != nil {
			if !errors.Is(err, errNotNIfTI1) {
				logger.Debug("NIfTI metadata extractor failed to load file", zap.String("path", p), zap.Error(err))
			} else {
				logger.Debug("Ignoring non-NIfTI1 file", zap.String("path", p))
			}
			return nil, nil
		}
		return HeaderMetadata(h, logger.With(zap.String("path", p))), nil
	})
	if err != nil {
		return nil, fmt.Errorf("nifti1: %w", err)
	}
	for i, rec := range records {
		res.AddFile(candidates[i], rec)
	}

	logger.Info("Finished NIfTI1 metadata extraction", zap.String("dataset", req.Root), zap.Int("files", len(res.Files)))
	res.Dataset = map[string]any{"@context": Context()}
	return res, nil
}

// HeaderMetadata converts a header into a flat metadata record.
func HeaderMetadata(h *Header, logger *zap.Logger) map[string]any {
	logger = logging.OrNop(logger)

	meta := map[string]any{
		"sizeof_hdr":     int(h.SizeofHdr),
		"dim":            ints(h.Dim[:]),
		"slice_start":    int(h.SliceStart),
		"pixdim":         floats(h.Pixdim[:]),
		"vox_offset":     float64(h.VoxOffset),
		"scl_slope":      float64(h.SclSlope),
		"scl_inter":      float64(h.SclInter),
		"slice_end":      int(h.SliceEnd),
		"cal_max":        float64(h.CalMax),
		"cal_min":        float64(h.CalMin),
		"slice_duration": float64(h.SliceDuration),
		"toffset":        float64(h.Toffset),
		"description":    cString(h.Descrip[:]),
		"aux_file":       cString(h.AuxFile[:]),
		"intent_name":    cString(h.IntentName[:]),
		"magic":          h.MagicString(),
		"datatype":       dtypeNames[h.Datatype],
		"intent":         intentLabels[h.IntentCode],
		"qform_code":     xformLabels[h.QformCode],
		"sform_code":     xformLabels[h.SformCode],
		"slice_order":    sliceOrderLabels[h.SliceCode],
	}
	meta["freq_axis"], meta["phase_axis"], meta["slice_axis"] = h.DimAxes()

	spatial, temporal := h.Units()
	meta["xyz_unit"] = unitLabel(spatial)
	meta["t_unit"] = unitLabel(temporal)

	for k, v := range meta {
		switch v := v.(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				delete(meta, k)
			}
		case string:
			if v == "" {
				delete(meta, k)
			}
		}
	}

	zooms := h.Zooms()
	if spatial == "unknown" {
		logger.Debug("Unit of spatial resolution unknown, assuming millimeter")
	}
	factor := spatialConversion[spatial]
	n := min(3, len(zooms))
	res := make([]float64, n)
	for i := range n {
		res[i] = zooms[i] * factor
	}
	meta["spatial_resolution(mm)"] = res

	if len(zooms) > 3 {
		if temporal == "unknown" {
			logger.Warn("Temporal unit unknown, assuming seconds")
		}
		switch temporal {
		case "hz", "ppm", "rads":
		default:
			f, ok := temporalConversion[temporal]
			if !ok {
				f = 1
			}
			meta["temporal_spacing(s)"] = zooms[3] * f
		}
	}
	return meta
}

func unitLabel(code string) string {
	u, ok := unitMap[code]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s (%s)", u.label, u.term)
}

func ints(v []int16) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}

// floats converts header arrays; non-finite values become null.
func floats(v []float32) []any {
	out := make([]any, len(v))
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			out[i] = nil
			continue
		}
		out[i] = f
	}
	return out
}
