// Package heuristic maps approved study specification entries onto BIDS
// output keys for a DICOM converter.
package heuristic

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

// SpecEnv names the environment variable holding the specification path.
const SpecEnv = "CBBS_STUDY_SPEC"

// ConverterHeudiconv is the only converter this heuristic handles.
const ConverterHeudiconv = studyspec.ConverterHeudiconv

// ValidationError reports an unusable specification entry.
type ValidationError struct {
	UID string
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ValidateSpec checks an entry. It returns false without error for entries
// that are fine but not meant to be converted here.
func ValidateSpec(e *studyspec.Entry, logger *zap.Logger) (bool, error) {
	logger = logging.OrNop(logger)
	if e == nil || (e.Type == "" && e.UID == "" && len(e.Fields) == 0) {
		return false, &ValidationError{Msg: "Image series specification is empty."}
	}
	if e.Type != studyspec.TypeDICOMSeries {
		return false, &ValidationError{UID: e.UID, Msg: "Specification not of type 'dicomseries'."}
	}
	if e.UID == "" {
		return false, &ValidationError{Msg: "Invalid image series UID."}
	}
	if e.Value("subject") == "" {
		return false, &ValidationError{UID: e.UID, Msg: fmt.Sprintf("Found no subject in specification for series %s.", e.UID)}
	}
	switch e.Value("converter") {
	case studyspec.ConverterIgnore:
		logger.Debug("Skip series marked 'ignore' in spec", zap.String("uid", e.UID))
		return false, nil
	case ConverterHeudiconv:
		return true, nil
	default:
		// Values outside studyspec.Converters only come from hand edits.
		logger.Debug("Skip series not to be converted by heudiconv", zap.String("uid", e.UID))
		return false, nil
	}
}

// Key is an output template plus the file types to produce.
type Key struct {
	Template string   `json:"template"`
	OutType  []string `json:"outtype"`
}

// Conversion lists the series converted into one output key.
type Conversion struct {
	Key    Key      `json:"key"`
	Series []string `json:"series"`
}

// InfoToDict assigns every series in seqinfo to its output key. Each series
// must match exactly one specification entry by UID.
func InfoToDict(spec []studyspec.Entry, seqinfo []SeqInfo, logger *zap.Logger) ([]Conversion, error) {
	logger = logging.OrNop(logger)
	var out []Conversion
	index := make(map[string]int)
	for _, s := range seqinfo {
		var matches []*studyspec.Entry
		for i := range spec {
			if spec[i].UID == s.UID {
				matches = append(matches, &spec[i])
			}
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("found no match for seqinfo: %s", s)
		}
		if len(matches) != 1 {
			return nil, fmt.Errorf("found %d matches for series UID %s", len(matches), s.UID)
		}
		entry := matches[0]

		ok, err := ValidateSpec(entry, logger)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Debug("Series invalid, skipped", zap.String("uid", s.UID))
			continue
		}

		template := Template(entry)
		i, seen := index[template]
		if !seen {
			i = len(out)
			index[template] = i
			out = append(out, Conversion{Key: Key{Template: template, OutType: []string{"nii.gz"}}})
		}
		out[i].Series = append(out[i].Series, s.SeriesID)
	}
	return out, nil
}

// Template builds the BIDS path template of an entry. Every series is
// treated as functional data.
func Template(e *studyspec.Entry) string {
	sub := "sub-" + e.Value("subject")
	dir, name := sub, sub
	if ses := e.Value("session"); ses != "" {
		dir += "/ses-" + ses
		name += "_ses-" + ses
	}
	dir += "/func"
	if task := e.Value("task"); task != "" {
		name += "_task-" + task
	}
	if run := e.Value("run"); run != "" && run != "0" {
		name += "_run-" + run
	}
	return dir + "/" + name + "_bold"
}

// LoadStudySpec reads the specification named by CBBS_STUDY_SPEC. An unset
// variable gives an empty specification.
func LoadStudySpec() ([]studyspec.Entry, error) {
	path := strings.TrimSpace(os.Getenv(SpecEnv))
	if path == "" {
		return nil, nil
	}
	return studyspec.Load(path)
}
