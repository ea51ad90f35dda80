// Package scidata exports the structure of a BIDS dataset as ISA-Tab
// tables (investigation, study and one assay table per imaging suffix).
package scidata

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/bids"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

// Action names the results produced by Export.
const Action = "bids2scidata"

const (
	investigationFile = "i_Investigation.txt"
	studyFile         = "s_study.txt"
	recruitment       = "Participant recruitment"
	mriProtocol       = "Magnetic Resonance Imaging"
)

// imaging datatypes that produce assay rows
var assayDatatypes = map[string]bool{"anat": true, "func": true, "dwi": true, "fmap": true}

// participants.tsv columns renamed in the study table
var characteristicNames = map[string]string{
	"age":    "age at scan",
	"gender": "sex",
}

var sexLabels = map[string]string{"m": "male", "f": "female"}

// entities reported as factor values
var factors = []string{"task"}

// Options configures Export.
type Options struct {
	Dataset string
	// Output is the target directory. The default is
	// scidata_isatab_<commit> in the working directory.
	Output        string
	RepoName      string
	RepoAccession string
	RepoURL       string
	Logger        *zap.Logger
}

// Export writes the ISA-Tab tables of a BIDS dataset.
func Export(ctx context.Context, opts Options) (dataset.Result, error) {
	logger := logging.OrNop(opts.Logger)
	for flag, v := range map[string]string{"repo name": opts.RepoName, "repo accession": opts.RepoAccession, "repo URL": opts.RepoURL} {
		if v == "" {
			return dataset.Result{}, fmt.Errorf("insufficient arguments for %s: %s is required", Action, flag)
		}
	}
	root, err := filepath.Abs(opts.Dataset)
	if err != nil {
		return dataset.Result{}, err
	}
	desc, err := bids.ReadJSON(filepath.Join(root, bids.DescriptionFile))
	if errors.Is(err, os.ErrNotExist) {
		return dataset.Result{Action: Action, Status: dataset.StatusImpossible, Path: root, Type: "dataset",
			Message: "dataset does not contain BIDS metadata"}, nil
	}
	if err != nil {
		return dataset.Result{}, err
	}

	paths, err := metadata.ListFiles(root)
	if err != nil {
		return dataset.Result{}, err
	}
	layout := bids.NewLayout(root, paths)

	out := opts.Output
	if out == "" {
		out = "scidata_isatab"
		if sha := dataset.RefCommit(ctx, root); sha != "" {
			out += "_" + sha
		}
	}
	out, err = filepath.Abs(out)
	if err != nil {
		return dataset.Result{}, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return dataset.Result{}, err
	}

	study, err := studyTable(root, layout)
	if err != nil {
		return dataset.Result{}, err
	}
	if err := writeTable(filepath.Join(out, studyFile), study); err != nil {
		return dataset.Result{}, err
	}

	assays := assayTables(layout, opts)
	var assayFiles []string
	for _, a := range assays {
		name := "a_mri_" + strings.ToLower(a.suffix) + ".txt"
		assayFiles = append(assayFiles, name)
		if err := writeTable(filepath.Join(out, name), a.rows); err != nil {
			return dataset.Result{}, err
		}
		logger.Debug("Wrote assay table", zap.String("file", name), zap.Int("rows", len(a.rows)-1))
	}

	inv := investigation(desc, opts, assayFiles, assays)
	if err := os.WriteFile(filepath.Join(out, investigationFile), []byte(inv), 0o644); err != nil {
		return dataset.Result{}, err
	}
	logger.Info("Exported ISA-Tab", zap.String("output", out), zap.Int("assays", len(assays)))
	return dataset.Result{Action: Action, Status: dataset.StatusOK, Path: out, Type: "directory"}, nil
}

// studyTable lists one sample per participant. Without participants.tsv the
// subjects of the layout are used.
func studyTable(root string, layout *bids.Layout) ([][]string, error) {
	header, participants, err := bids.ReadParticipants(root)
	if err != nil {
		return nil, err
	}
	if participants == nil {
		for _, s := range layout.Values("subject") {
			participants = append(participants, bids.Participant{ID: fmt.Sprint(s)})
		}
	}

	type column struct{ source, name string }
	var cols []column
	for _, h := range header {
		if h == "participant_id" {
			continue
		}
		name := strings.ToLower(h)
		if n, ok := characteristicNames[name]; ok {
			name = n
		}
		cols = append(cols, column{source: h, name: name})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].name < cols[j].name })

	head := []string{"Source Name", "Characteristics[organism]", "Characteristics[organism part]", "Protocol REF", "Sample Name"}
	for _, c := range cols {
		head = append(head, "Characteristics["+c.name+"]")
	}
	rows := [][]string{head}
	for _, p := range participants {
		row := []string{p.ID, "homo sapiens", "brain", recruitment, p.ID}
		for _, c := range cols {
			v := p.Fields[c.source]
			if v == "n/a" {
				v = ""
			}
			if c.name == "sex" {
				if l, ok := sexLabels[strings.ToLower(v)]; ok {
					v = l
				}
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type assay struct {
	suffix string
	rows   [][]string
}

// assayTables groups the imaging files of the layout by suffix, in order of
// first appearance.
func assayTables(layout *bids.Layout, opts Options) []assay {
	var order []string
	bySuffix := make(map[string][]bids.File)
	for _, f := range layout.Files {
		dt, _ := f.Entities["datatype"].(string)
		ext, _ := f.Entities["extension"].(string)
		suffix, _ := f.Entities["suffix"].(string)
		if !assayDatatypes[dt] || suffix == "" || (ext != ".nii" && ext != ".nii.gz") {
			continue
		}
		if _, ok := bySuffix[suffix]; !ok {
			order = append(order, suffix)
		}
		bySuffix[suffix] = append(bySuffix[suffix], f)
	}

	out := make([]assay, 0, len(order))
	for _, suffix := range order {
		files := bySuffix[suffix]
		sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
		var used []string
		for _, fac := range factors {
			for _, f := range files {
				if _, ok := f.Entities[fac]; ok {
					used = append(used, fac)
					break
				}
			}
		}
		head := []string{"Sample Name", "Protocol REF", "Parameter Value[modality]", "Assay Name", "Raw Data File",
			"Comment[Data Repository]", "Comment[Data Record Accession]", "Comment[Data Record URI]"}
		for _, fac := range used {
			head = append(head, "Factor Value["+fac+"]")
		}
		rows := [][]string{head}
		for _, f := range files {
			stem, _ := bids.SplitExt(path.Base(f.Path))
			row := []string{
				fmt.Sprint(f.Entities["subject"]), mriProtocol, suffix,
				strings.TrimSuffix(stem, "_"+suffix), f.Path,
				opts.RepoName, opts.RepoAccession, opts.RepoURL,
			}
			for _, fac := range used {
				v, ok := f.Entities[fac]
				if !ok {
					row = append(row, "")
					continue
				}
				row = append(row, fmt.Sprint(v))
			}
			rows = append(rows, row)
		}
		out = append(out, assay{suffix: suffix, rows: rows})
	}
	return out
}

func writeTable(name string, rows [][]string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		w.WriteString(strings.Join(row, "\t"))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
