package fslfeat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

const design = `# FEAT version number
set fmri(version) 6.00

# Analysis level
set fmri(level) 1
set fmri(analysis) 7
set fmri(relative_yn) 0
set fmri(help_yn) 1
set fmri(outputdir) "/tmp/localizerdemo/1stlvl_glm"
set fmri(tr) 2.000001 
set fmri(npts) 156
set fmri(inputtype) 2
set fmri(filtering_yn) 1
set fmri(mc) 1
set fmri(unwarp_dir) y-
set fmri(st) 1
set fmri(st_file) ""
set fmri(bet_yn) 1
set fmri(melodic_yn) 0
set fmri(stats_yn) 1
set fmri(motionevs) 1
set fmri(mixed_yn) 2
set fmri(evs_orig) 3
set fmri(evs_real) 6
set fmri(constcol) 0
set fmri(thresh) 3
set fmri(regstandard_yn) 0
set fmri(regstandard) "DSROOT/standard/MNI152_T1_2mm_brain"
set feat_files(1) "/tmp/localizerdemo/sub-02/func"
set fmri(evtitle1) "face"
set fmri(shape1) 3
set fmri(tempfilt_yn1) 1
set fmri(deriv_yn1) 1
set fmri(ortho1.0) 0
set fmri(ortho1.1) 0
set fmri(ortho1.2) 0
set fmri(ortho1.3) 0
set fmri(evtitle2) "house"
set fmri(shape2) 10
set fmri(tempfilt_yn2) 0
set fmri(ortho2.0) 0
set fmri(ortho2.1) 1
set fmri(ortho2.2) 0
set fmri(ortho2.3) 0
set fmri(evtitle12) "body"
set fmri(conpic_real.1) 1
set fmri(conname_real.1) "FFA"
set fmri(con_real1.1) 2.0
set fmri(con_real1.3) -1.0
set fmri(conname_orig.1) "FFA"
set fmri(con_orig1.1) 2.0
set fmri(con_orig1.2) -1.0
set fmri(conmask1_1) 0
`

const clusterTable = "Cluster Index\tVoxels\tP\tZ-MAX\n" +
	"2\t347\t1.97e-09\t11.9\n" +
	"1\t64\t0.0499\t6.2\n"

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReadFSF(t *testing.T) {
	root := "/data/ds"
	props, err := ReadFSF(strings.NewReader(strings.ReplaceAll(design, "DSROOT", root)), root, nil)
	if err != nil {
		t.Fatalf("ReadFSF() error = %v", err)
	}

	scalars := map[string]any{
		"version":     6.0,
		"level":       "first",
		"analysis":    "full",
		"outputdir":   "/tmp/localizerdemo/1stlvl_glm",
		"tr":          2.000001,
		"npts":        156,
		"inputtype":   "cope",
		"mc":          "mcflirt",
		"unwarp_dir":  "y-",
		"st":          "regularup",
		"bet":         1,
		"motionevs":   true,
		"mixed":       "me_flame1",
		"evs_orig":    3,
		"evs_real":    6,
		"thresh":      "cluster",
		"regstandard": "standard/MNI152_T1_2mm_brain",
	}
	for k, want := range scalars {
		if got := props[k]; got != want {
			t.Errorf("props[%q] = %#v, want %#v", k, got, want)
		}
	}
	for _, k := range []string{"relative", "help", "constcol", "st_file", "filtering"} {
		if _, ok := props[k]; ok {
			t.Errorf("props[%q] should not be reported", k)
		}
	}
	if diff := cmp.Diff([]string{"melodic", "regstandard"}, props["steps_disabled"]); diff != "" {
		t.Errorf("steps_disabled mismatch (-want +got):\n%s", diff)
	}

	wantEVs := []any{
		map[string]any{"evtitle": "face", "shape": "custom_ev3", "tempfilt": true, "deriv": 1},
		map[string]any{"evtitle": "house", "shape": "empty", "tempfilt": false, "ortho": []any{1, 0, 0}},
		map[string]any{"evtitle": "body"},
	}
	if diff := cmp.Diff(wantEVs, props["ev"]); diff != "" {
		t.Errorf("ev mismatch (-want +got):\n%s", diff)
	}

	wantContrasts := []any{
		map[string]any{
			"name":     "FFA",
			"con_real": []any{2.0, 0, -1.0, 0, 0, 0},
			"con_orig": []any{2.0, -1.0, 0},
		},
	}
	if diff := cmp.Diff(wantContrasts, props["contrasts"]); diff != "" {
		t.Errorf("contrasts mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitEV(t *testing.T) {
	tests := []struct {
		in   string
		name string
		id   int
		ok   bool
	}{
		{"evtitle1", "evtitle", 1, true},
		{"evtitle10", "evtitle", 10, true},
		{"evtitle12", "evtitle", 12, true},
		{"tempfilt_yn3", "tempfilt_yn", 3, true},
		{"ortho1.2", "", 0, false},
		{"conmask1_1", "", 0, false},
		{"npts", "", 0, false},
	}
	for _, tt := range tests {
		name, id, ok := splitEV(tt.in)
		if name != tt.name || id != tt.id || ok != tt.ok {
			t.Errorf("splitEV(%q) = %q, %d, %v, want %q, %d, %v", tt.in, name, id, ok, tt.name, tt.id, tt.ok)
		}
	}
}

func TestConvertValue(t *testing.T) {
	tests := map[string]any{
		"156":      156,
		"2.000001": 2.000001,
		"-1.0":     -1.0,
		"y-":       "y-",
		"BBR":      "BBR",
		"nan":      "nan",
	}
	for in, want := range tests {
		if got := ConvertValue(in); got != want {
			t.Errorf("ConvertValue(%q) = %#v, want %#v", in, got, want)
		}
	}
}

func TestExtractor(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"some/sub-02.feat/design.fsf":         strings.ReplaceAll(design, "DSROOT", root),
		"some/sub-02.feat/cluster_zstat1.txt": clusterTable,
		"other/design.fsf.bak":                "set fmri(level) 2\n",
	})
	paths, err := metadata.ListFiles(root)
	if err != nil {
		t.Fatal(err)
	}

	res, err := New().Metadata(context.Background(), metadata.Request{Root: root, Paths: paths})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(res.Files) != 0 {
		t.Errorf("got %d file records, want none", len(res.Files))
	}
	analyses := res.Dataset["analysis"].([]any)
	if len(analyses) != 1 {
		t.Fatalf("got %d analyses, want 1", len(analyses))
	}
	a := analyses[0].(map[string]any)
	if a["path"] != "some/sub-02.feat" {
		t.Errorf("path = %v, want some/sub-02.feat", a["path"])
	}
	if a["regstandard"] != "standard/MNI152_T1_2mm_brain" {
		t.Errorf("regstandard = %v, want a dataset-relative path", a["regstandard"])
	}
	if n := len(a["ev"].([]any)); n != 3 {
		t.Errorf("got %d EVs, want 3", n)
	}
	con := a["contrasts"].([]any)[0].(map[string]any)
	wantClusters := []any{
		map[string]any{"Cluster Index": 2, "Voxels": 347, "P": 1.97e-09, "Z-MAX": 11.9},
		map[string]any{"Cluster Index": 1, "Voxels": 64, "P": 0.0499, "Z-MAX": 6.2},
	}
	if diff := cmp.Diff(wantClusters, con["clusters"]); diff != "" {
		t.Errorf("clusters mismatch (-want +got):\n%s", diff)
	}
	if _, ok := res.Dataset["@context"].(map[string]any)["fslfeat"]; !ok {
		t.Error("context lacks fslfeat vocabulary")
	}
}

func TestExtractorNoAnalyses(t *testing.T) {
	res, err := New().Metadata(context.Background(), metadata.Request{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if diff := cmp.Diff([]any{}, res.Dataset["analysis"]); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}
