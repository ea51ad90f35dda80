// Package dicom extracts image series metadata from DICOM files.
//
// Every readable file contributes a flat keyword->value record. Files are
// grouped into image series by SeriesInstanceUID; a series record keeps
// only the properties that are identical across all of its files.
package dicom

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Name is the extractor name.
const Name = "dicom"

// mediaStorageDirectory is the SOP class UID of a DICOMDIR.
const mediaStorageDirectory = "1.2.840.10008.1.3.10"

// UniqueExclude lists per-image properties that are never aggregated into
// unique content properties.
var UniqueExclude = []string{
	"AcquisitionTime",
	"ContentTime",
	"InstanceCreationTime",
	"InstanceNumber",
	"SOPInstanceUID",
	"SliceLocation",
	"TemporalPositionIdentifier",
	"TriggerTime",
	"WindowCenter",
	"WindowWidth",
}

// Context is the JSON-LD context reported with dataset metadata.
func Context() map[string]any {
	return map[string]any{
		"dicom": metadata.Vocabulary("http://semantic-dicom.org/dcm#", "DICOM vocabulary (seemingly incomplete)"),
	}
}

var errNotDICOM = errors.New("not a DICOM file")
var errDICOMDIR = errors.New("DICOMDIR")

// Extractor implements metadata.Extractor for DICOM.
type Extractor struct {
	// MaxFieldSize drops string values longer than this many bytes (0 = no limit).
	MaxFieldSize int
}

// New returns a DICOM extractor.
func New(maxFieldSize int) *Extractor {
	return &Extractor{MaxFieldSize: maxFieldSize}
}

// Name implements metadata.Extractor.
func (e *Extractor) Name() string { return Name }

// UniqueExclude implements the optional unique-exclusion hook.
func (e *Extractor) UniqueExclude() []string { return UniqueExclude }

type parsedFile struct {
	path   string
	record map[string]any
	skip   bool
}

type series struct {
	record map[string]any
	files  []string
}

// Metadata implements metadata.Extractor.
func (e *Extractor) Metadata(ctx context.Context, req metadata.Request) (*metadata.Result, error) {
	logger := logging.OrNop(req.Logger)
	logger.Info("Start DICOM metadata extraction", zap.String("dataset", req.Root), zap.Int("files", len(req.Paths)))

	parsed, err := metadata.ParallelMap(ctx, req.Workers, req.Paths, func(_ context.Context, p string) (parsedFile, error) {
		if strings.HasPrefix(path.Base(p), "PSg") {
			logger.Debug("Ignoring DICOM file", zap.String("path", p))
			return parsedFile{path: p, skip: true}, nil
		}
		record, err := e.ReadFile(path.Join(req.Root, p))
		switch {
		case errors.Is(err, errNotDICOM):
			logger.Debug("Does not look like a DICOM file, skipped", zap.String("path", p))
			return parsedFile{path: p, skip: true}, nil
		case errors.Is(err, errDICOMDIR):
			logger.Debug("Appears to be a DICOMDIR file, skipped", zap.String("path", p))
			return parsedFile{path: p, skip: true}, nil
		case err != nil:
			logger.Warn("Failed to read DICOM file", zap.String("path", p), zap.Error(err))
			return parsedFile{path: p, skip: true}, nil
		}
		return parsedFile{path: p, record: record}, nil
	})
	if err != nil {
		return nil, err
	}

	res := &metadata.Result{}
	var order []string
	bySeries := make(map[string]*series)
	for _, pf := range parsed {
		if pf.skip {
			continue
		}
		uid, _ := pf.record["SeriesInstanceUID"].(string)
		if uid == "" {
			logger.Debug("DICOM file without SeriesInstanceUID, skipped", zap.String("path", pf.path))
			continue
		}
		if req.Content {
			res.AddFile(pf.path, pf.record)
		}

		s, ok := bySeries[uid]
		if !ok {
			rec := make(map[string]any, len(pf.record)+1)
			for k, v := range pf.record {
				rec[k] = v
			}
			dir := path.Dir(pf.path)
			if dir == "" {
				dir = "."
			}
			rec["SeriesDirectory"] = dir
			s = &series{record: rec}
			bySeries[uid] = s
			order = append(order, uid)
		} else {
			for k, v := range s.record {
				if k == "SeriesDirectory" {
					continue
				}
				if !reflect.DeepEqual(pf.record[k], v) {
					delete(s.record, k)
				}
			}
		}
		s.files = append(s.files, pf.path)
	}

	seriesList := make([]any, 0, len(order))
	for _, uid := range order {
		seriesList = append(seriesList, bySeries[uid].record)
	}
	res.Dataset = map[string]any{
		"@context": Context(),
		"Series":   seriesList,
	}
	logger.Info("Finished DICOM metadata extraction", zap.Int("series", len(order)))
	return res, nil
}

// ReadFile parses the header of a DICOM file into a keyword->value record.
// Pixel data, binary values, sequences and private tags are skipped.
func (e *Extractor) ReadFile(filename string) (map[string]any, error) {
	ds, err := parseHeader(filename)
	if err != nil {
		return nil, err
	}
	if sopClass := firstString(ds, tag.MediaStorageSOPClassUID); sopClass == mediaStorageDirectory || path.Base(filename) == "DICOMDIR" {
		return nil, errDICOMDIR
	}

	out := make(map[string]any, len(ds.Elements))
	for _, elem := range ds.Elements {
		// file meta information is not part of the dataset proper
		if elem == nil || elem.Value == nil || elem.Tag.Group == 0x0002 {
			continue
		}
		info, err := tag.Find(elem.Tag)
		if err != nil {
			continue
		}
		key := info.Keyword
		if key == "" {
			key = info.Name
		}
		if key == "" {
			continue
		}
		v, ok := convertValue(elem)
		if !ok {
			continue
		}
		if e.MaxFieldSize > 0 && tooLarge(v, e.MaxFieldSize) {
			continue
		}
		out[key] = v
	}
	return out, nil
}

// parseHeader reads elements until the pixel data, tolerating a broken tail.
func parseHeader(filename string) (dicom.Dataset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return dicom.Dataset{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return dicom.Dataset{}, err
	}

	p, err := dicom.NewParser(f, info.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return dicom.Dataset{}, fmt.Errorf("%w: %v", errNotDICOM, err)
	}

	var elements []*dicom.Element
	for {
		elem, err := p.Next()
		if err != nil {
			break
		}
		elements = append(elements, elem)
	}

	meta := p.GetMetadata()
	ds := dicom.Dataset{Elements: append(meta.Elements, elements...)}
	if len(ds.Elements) == 0 {
		return dicom.Dataset{}, errNotDICOM
	}
	return ds, nil
}

func firstString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil || elem.Value.ValueType() != dicom.Strings {
		return ""
	}
	vals, _ := elem.Value.GetValue().([]string)
	if len(vals) == 0 {
		return ""
	}
	return sanitize(vals[0])
}

// convertValue maps an element value to a JSON friendly scalar or list.
// DS values become floats and IS values ints; single values are unwrapped.
func convertValue(elem *dicom.Element) (any, bool) {
	switch elem.Value.ValueType() {
	case dicom.Strings:
		raw, _ := elem.Value.GetValue().([]string)
		vals := make([]any, len(raw))
		for i, s := range raw {
			vals[i] = convertString(elem.RawValueRepresentation, sanitize(s))
		}
		return unwrap(vals), true
	case dicom.Ints:
		raw, _ := elem.Value.GetValue().([]int)
		vals := make([]any, len(raw))
		for i, n := range raw {
			vals[i] = n
		}
		return unwrap(vals), true
	case dicom.Floats:
		raw, _ := elem.Value.GetValue().([]float64)
		vals := make([]any, len(raw))
		for i, f := range raw {
			vals[i] = f
		}
		return unwrap(vals), true
	default:
		return nil, false
	}
}

func convertString(vr, s string) any {
	switch vr {
	case "DS":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "IS":
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return s
}

func unwrap(vals []any) any {
	switch len(vals) {
	case 0:
		return ""
	case 1:
		return vals[0]
	default:
		return vals
	}
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

func tooLarge(v any, limit int) bool {
	switch t := v.(type) {
	case string:
		return len(t) > limit
	case []any:
		n := 0
		for _, x := range t {
			if s, ok := x.(string); ok {
				n += len(s)
			}
		}
		return n > limit
	}
	return false
}
