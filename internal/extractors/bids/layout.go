package bids

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DescriptionFile holds the dataset-level BIDS description.
const DescriptionFile = "dataset_description.json"

// ParticipantsFile holds one row per participant.
const ParticipantsFile = "participants.tsv"

// Entity names in reporting order.
var Entities = []string{
	"subject", "session", "task", "acquisition", "ceagent", "reconstruction",
	"direction", "run", "proc", "modality", "echo", "flip", "inv", "mt",
	"part", "recording", "space", "suffix", "scans", "fmap", "datatype",
	"extension",
}

// filename key to entity name
var entityKeys = map[string]string{
	"sub":       "subject",
	"ses":       "session",
	"task":      "task",
	"acq":       "acquisition",
	"ce":        "ceagent",
	"rec":       "reconstruction",
	"dir":       "direction",
	"run":       "run",
	"proc":      "proc",
	"mod":       "modality",
	"echo":      "echo",
	"flip":      "flip",
	"inv":       "inv",
	"mt":        "mt",
	"part":      "part",
	"recording": "recording",
	"space":     "space",
}

var datatypes = map[string]bool{
	"anat": true, "beh": true, "dwi": true, "eeg": true, "fmap": true,
	"func": true, "ieeg": true, "meg": true, "micr": true, "nirs": true,
	"perf": true, "pet": true,
}

// top-level directories that are not part of the raw layout
var skipDirs = map[string]bool{
	"derivatives": true,
	"sourcedata":  true,
	"code":        true,
	"stimuli":     true,
	"models":      true,
}

var fieldmapSuffixes = map[string]bool{
	"phasediff": true, "magnitude1": true, "magnitude2": true,
	"phase1": true, "phase2": true, "fieldmap": true, "epi": true,
}

// SplitExt splits a base name at its first dot, so "x_bold.nii.gz" yields
// "x_bold" and ".nii.gz".
func SplitExt(base string) (stem, ext string) {
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i], base[i:]
	}
	return base, ""
}

// ParseEntities derives BIDS entities from a slash-separated path relative
// to the BIDS root. ok is false for paths outside the raw layout.
func ParseEntities(rel string) (map[string]any, bool) {
	parts := strings.Split(path.Clean(rel), "/")
	base := parts[len(parts)-1]
	dirs := parts[:len(parts)-1]
	if strings.HasPrefix(base, ".") {
		return nil, false
	}
	for _, d := range dirs {
		if strings.HasPrefix(d, ".") {
			return nil, false
		}
	}
	if len(dirs) > 0 && skipDirs[dirs[0]] {
		return nil, false
	}

	stem, ext := SplitExt(base)
	if ext == "" {
		return nil, false
	}
	if len(dirs) == 0 && ext != ".json" && ext != ".tsv" {
		return nil, false
	}

	ents := make(map[string]any)
	for _, d := range dirs {
		switch {
		case strings.HasPrefix(d, "sub-"):
			ents["subject"] = d[4:]
		case strings.HasPrefix(d, "ses-"):
			ents["session"] = d[4:]
		case datatypes[d]:
			ents["datatype"] = d
		}
	}
	fields := strings.Split(stem, "_")
	for i, f := range fields {
		key, val, found := strings.Cut(f, "-")
		if !found {
			if i == len(fields)-1 && isAlnum(f) {
				ents["suffix"] = f
			}
			continue
		}
		name, known := entityKeys[key]
		if !known || val == "" || !isAlnum(val) {
			continue
		}
		if name == "run" {
			n, err := strconv.Atoi(val)
			if err != nil {
				continue
			}
			ents[name] = n
			continue
		}
		ents[name] = val
	}
	if s, ok := ents["suffix"].(string); ok {
		if s == "scans" && ext == ".tsv" {
			ents["scans"] = rel
		}
		if fieldmapSuffixes[s] && strings.HasPrefix(ext, ".nii") {
			ents["fmap"] = s
		}
	}
	ents["extension"] = ext
	return ents, true
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// File is one entry of the raw BIDS layout.
type File struct {
	Path     string
	Entities map[string]any
}

// Layout indexes the files of a BIDS dataset.
type Layout struct {
	Root  string
	Files []File

	byPath   map[string]int
	sidecars sync.Map // path -> map[string]any
}

// NewLayout indexes paths (slash-separated, relative to root).
func NewLayout(root string, paths []string) *Layout {
	l := &Layout{Root: root, byPath: make(map[string]int)}
	for _, p := range paths {
		ents, ok := ParseEntities(p)
		if !ok {
			continue
		}
		l.byPath[p] = len(l.Files)
		l.Files = append(l.Files, File{Path: p, Entities: ents})
	}
	return l
}

// Entities returns the parsed entities of an indexed path.
func (l *Layout) Entities(p string) (map[string]any, bool) {
	i, ok := l.byPath[p]
	if !ok {
		return nil, false
	}
	return l.Files[i].Entities, true
}

// Values returns the sorted unique values of an entity across the layout.
func (l *Layout) Values(entity string) []any {
	seen := make(map[any]bool)
	var out []any
	for _, f := range l.Files {
		v, ok := f.Entities[entity]
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		a, aInt := out[i].(int)
		b, bInt := out[j].(int)
		if aInt && bInt {
			return a < b
		}
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out
}

// Metadata merges the JSON sidecars that apply to p, following the BIDS
// inheritance principle: sidecars from the root down to p's directory whose
// entities are a subset of p's, deeper ones overriding shallower ones.
func (l *Layout) Metadata(p string) (map[string]any, error) {
	ents, ok := l.Entities(p)
	if !ok {
		return nil, fmt.Errorf("%s: not part of the BIDS layout", p)
	}
	suffix, _ := ents["suffix"].(string)
	dir := path.Dir(p)

	type candidate struct {
		path  string
		depth int
		nents int
	}
	var cands []candidate
	for _, f := range l.Files {
		if f.Path == p || f.Entities["extension"] != ".json" || f.Entities["suffix"] != suffix {
			continue
		}
		fdir := path.Dir(f.Path)
		if fdir != "." && fdir != dir && !strings.HasPrefix(dir, fdir+"/") {
			continue
		}
		if !entitySubset(f.Entities, ents) {
			continue
		}
		depth := 0
		if fdir != "." {
			depth = strings.Count(fdir, "/") + 1
		}
		cands = append(cands, candidate{path: f.Path, depth: depth, nents: len(f.Entities)})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].depth != cands[j].depth {
			return cands[i].depth < cands[j].depth
		}
		return cands[i].nents < cands[j].nents
	})

	md := make(map[string]any)
	for _, c := range cands {
		side, err := l.sidecar(c.path)
		if err != nil {
			return nil, fmt.Errorf("sidecar %s: %w", c.path, err)
		}
		for k, v := range side {
			md[k] = v
		}
	}
	return md, nil
}

func (l *Layout) sidecar(p string) (map[string]any, error) {
	if v, ok := l.sidecars.Load(p); ok {
		return v.(map[string]any), nil
	}
	m, err := ReadJSON(filepath.Join(l.Root, filepath.FromSlash(p)))
	if err != nil {
		return nil, err
	}
	l.sidecars.Store(p, m)
	return m, nil
}

// entitySubset reports whether every entity of side, apart from those
// describing the file itself, has the same value in target.
func entitySubset(side, target map[string]any) bool {
	for k, v := range side {
		switch k {
		case "extension", "suffix", "datatype", "fmap", "scans":
			continue
		}
		if target[k] != v {
			return false
		}
	}
	return true
}

// ReadJSON decodes a JSON object file.
func ReadJSON(name string) (map[string]any, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(name), err)
	}
	return m, nil
}

// ReadDescription reads dataset_description.json below root.
func ReadDescription(root string) (map[string]any, error) {
	return ReadJSON(filepath.Join(root, DescriptionFile))
}

// ReadTSV reads a tab-separated table with a header row.
func ReadTSV(name string) ([]string, []map[string]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", filepath.Base(name), err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", filepath.Base(name), err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// Participant is one participants.tsv row. ID has the "sub-" prefix removed.
type Participant struct {
	ID     string
	Fields map[string]string
}

// ReadParticipants reads participants.tsv below root in row order. A missing
// file yields no participants.
func ReadParticipants(root string) ([]string, []Participant, error) {
	header, rows, err := ReadTSV(filepath.Join(root, ParticipantsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var out []Participant
	for _, row := range rows {
		id := strings.TrimPrefix(row["participant_id"], "sub-")
		if id == "" {
			continue
		}
		fields := make(map[string]string, len(row))
		for k, v := range row {
			if k != "participant_id" {
				fields[k] = v
			}
		}
		out = append(out, Participant{ID: id, Fields: fields})
	}
	return header, out, nil
}
