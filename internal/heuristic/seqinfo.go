package heuristic

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec/rules"
)

// SeqInfo describes one series as seen by the converter.
type SeqInfo struct {
	SeriesID     string
	UID          string
	ProtocolName string
	Description  string
	Files        int
}

func (s SeqInfo) String() string {
	return fmt.Sprintf("SeqInfo(series_id=%s, series_uid=%s, protocol_name=%s)", s.SeriesID, s.UID, s.ProtocolName)
}

// ReadDicomInfo parses a heudiconv dicominfo.tsv table.
func ReadDicomInfo(r io.Reader) ([]SeqInfo, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"series_id", "series_uid"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("dicominfo table lacks column %q", required)
		}
	}
	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make([]SeqInfo, 0, len(rows)-1)
	for _, row := range rows[1:] {
		info := SeqInfo{
			SeriesID:     cell(row, "series_id"),
			UID:          cell(row, "series_uid"),
			ProtocolName: cell(row, "protocol_name"),
			Description:  cell(row, "series_description"),
		}
		fmt.Sscan(cell(row, "series_files"), &info.Files)
		out = append(out, info)
	}
	return out, nil
}

// ReadDicomInfoFile is ReadDicomInfo on a file.
func ReadDicomInfoFile(path string) ([]SeqInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDicomInfo(f)
}

// SeqInfoFromMetadata derives seqinfo from DICOM dataset metadata, naming
// series <SeriesNumber>-<ProtocolName>.
func SeqInfoFromMetadata(md studyspec.DatasetMetadata) ([]SeqInfo, error) {
	series, err := md.Series()
	if err != nil {
		return nil, err
	}
	out := make([]SeqInfo, 0, len(series))
	for _, s := range series {
		out = append(out, SeqInfo{
			SeriesID:     rules.Text(s["SeriesNumber"]) + "-" + rules.Text(s["ProtocolName"]),
			UID:          rules.Text(s["SeriesInstanceUID"]),
			ProtocolName: rules.Text(s["ProtocolName"]),
			Description:  rules.Text(s["SeriesDescription"]),
		})
	}
	return out, nil
}
