package bids

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

const description = `{
    "Name": "studyforrest_phase2",
    "BIDSVersion": "1.0.0-rc3",
    "Description": "Some description",
    "License": "PDDL",
    "Authors": ["Mike One", "Anna Two"],
    "Funding": "We got money from collecting plastic bottles",
    "ReferencesAndLinks": ["http://studyforrest.org"]
}`

const participants = "participant_id\tgender\tage\thandedness\thearing_problems_current\tlanguage\n" +
	"sub-01\tn/a\t30-35\tr\tn\tрусский\n" +
	"sub-03\tf\t20-25\tr\tn\tenglish\n"

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

func bidsTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"dataset_description.json":                   description,
		"participants.tsv":                           participants,
		"task-some_bold.json":                        `{"RepetitionTime": 2.0, "TaskName": "some"}`,
		"sub-01/func/sub-01_task-some_bold.nii.gz":   "",
		"sub-01/func/sub-01_task-some_bold.json":     `{"RepetitionTime": 1.5, "SliceTiming": [0, 0.5], "Nested": {"a": 1}}`,
		"sub-03/func/sub-03_task-other_bold.nii.gz":  "",
		"sub-03/anat/sub-03_run-02_T1w.nii.gz":       "",
		"derivatives/empty/.keep":                    "",
		"sourcedata/sub-01/dicoms/IM0001.dcm":        "",
	})
	return root
}

func TestDatasetMetadata(t *testing.T) {
	root := bidsTree(t)
	meta, err := DatasetMetadata(root)
	if err != nil {
		t.Fatalf("DatasetMetadata() error = %v", err)
	}
	delete(meta, "@context")
	want := map[string]any{
		"BIDSVersion": "1.0.0-rc3",
		"author":      []any{"Mike One", "Anna Two"},
		"citation":    []any{"http://studyforrest.org"},
		"conformsto":  "http://bids.neuroimaging.io/bids_spec1.0.0-rc3.pdf",
		"description": "Some description",
		"fundedby":    "We got money from collecting plastic bottles",
		"license":     "PDDL",
		"name":        "studyforrest_phase2",
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("dataset metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestDatasetMetadataReadme(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"dataset_description.json": `{"Name": "test", "BIDSVersion": "1.0.0-rc3"}`,
		"README":                   "\nA very detailed\ndescription с юникодом\n",
	})
	meta, err := DatasetMetadata(root)
	if err != nil {
		t.Fatalf("DatasetMetadata() error = %v", err)
	}
	if got, want := meta["description"], "A very detailed\ndescription с юникодом"; got != want {
		t.Errorf("description = %q, want %q", got, want)
	}
	ctx := meta["@context"].(map[string]any)
	bids := ctx["bids"].(map[string]any)
	if got, want := bids["@id"], "http://bids.neuroimaging.io/bids_spec1.0.0-rc3.pdf#"; got != want {
		t.Errorf("bids @id = %v, want %v", got, want)
	}
	if _, ok := ctx["age(years)"]; !ok {
		t.Error("context lacks age(years)")
	}
}

func TestDatasetMetadataExplicitDescriptionWins(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"dataset_description.json": `{"Name": "test", "Description": "Some description"}`,
		"README":                   "A very detailed description",
	})
	meta, err := DatasetMetadata(root)
	if err != nil {
		t.Fatalf("DatasetMetadata() error = %v", err)
	}
	if got := meta["description"]; got != "Some description" {
		t.Errorf("description = %q, want %q", got, "Some description")
	}
	if got := meta["conformsto"]; got != "http://bids.neuroimaging.io" {
		t.Errorf("conformsto = %v, want unversioned URL", got)
	}
}

func TestExtractorFiles(t *testing.T) {
	root := bidsTree(t)
	paths, err := metadata.ListFiles(root)
	if err != nil {
		t.Fatal(err)
	}
	res, err := New().Metadata(context.Background(), metadata.Request{Root: root, Paths: paths, Content: true})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	files := make(map[string]map[string]any)
	for _, f := range res.Files {
		files[f.Path] = f.Metadata
	}
	for _, p := range []string{"task-some_bold.json", "sub-01/func/sub-01_task-some_bold.json", "derivatives/empty/.keep", "sourcedata/sub-01/dicoms/IM0001.dcm"} {
		if _, ok := files[p]; ok {
			t.Errorf("unexpected file record for %s", p)
		}
	}

	want := map[string]any{
		"subject": map[string]any{
			"id":                       "01",
			"gender":                   "n/a",
			"age(years)":               "30-35",
			"handedness":               "r",
			"hearing_problems_current": "n",
			"language":                 "русский",
		},
		"task":           "some",
		"suffix":         "bold",
		"datatype":       "func",
		"extension":      ".nii.gz",
		"RepetitionTime": 1.5,
		"TaskName":       "some",
		"SliceTiming":    []any{0.0, 0.5},
	}
	if diff := cmp.Diff(want, files["sub-01/func/sub-01_task-some_bold.nii.gz"]); diff != "" {
		t.Errorf("sub-01 bold metadata mismatch (-want +got):\n%s", diff)
	}

	other := files["sub-03/func/sub-03_task-other_bold.nii.gz"]
	if got := other["subject"].(map[string]any)["gender"]; got != "female" {
		t.Errorf("sub-03 gender = %v, want female", got)
	}
	if _, ok := other["RepetitionTime"]; ok {
		t.Error("sidecar of another task applied to sub-03")
	}
	if got := files["sub-03/anat/sub-03_run-02_T1w.nii.gz"]["run"]; got != 2 {
		t.Errorf("run = %v, want 2", got)
	}
}

func TestExtractorNoContent(t *testing.T) {
	root := bidsTree(t)
	res, err := New().Metadata(context.Background(), metadata.Request{Root: root, Paths: []string{"sub-01/func/sub-01_task-some_bold.nii.gz"}})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(res.Files) != 0 {
		t.Errorf("got %d file records without content", len(res.Files))
	}
	if res.Dataset["name"] != "studyforrest_phase2" {
		t.Errorf("dataset name = %v", res.Dataset["name"])
	}
}

func TestExtractorRequiresDescription(t *testing.T) {
	if _, err := New().Metadata(context.Background(), metadata.Request{Root: t.TempDir()}); err == nil {
		t.Error("Metadata() without dataset_description.json succeeded")
	}
}

func TestParseEntities(t *testing.T) {
	tests := []struct {
		path string
		want map[string]any
		ok   bool
	}{
		{
			path: "sub-01/ses-pre/func/sub-01_ses-pre_task-rest_acq-fast_run-01_echo-2_bold.nii.gz",
			want: map[string]any{
				"subject": "01", "session": "pre", "task": "rest", "acquisition": "fast",
				"run": 1, "echo": "2", "suffix": "bold", "datatype": "func", "extension": ".nii.gz",
			},
			ok: true,
		},
		{
			path: "dataset_description.json",
			want: map[string]any{"suffix": "description", "extension": ".json"},
			ok:   true,
		},
		{
			path: "sub-02/fmap/sub-02_phasediff.nii.gz",
			want: map[string]any{"subject": "02", "datatype": "fmap", "suffix": "phasediff", "fmap": "phasediff", "extension": ".nii.gz"},
			ok:   true,
		},
		{path: "README", ok: false},
		{path: "README.md", ok: false},
		{path: "derivatives/fmriprep/sub-01/anat/sub-01_T1w.nii.gz", ok: false},
		{path: "sub-01/.heudiconv/info.txt", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := ParseEntities(tt.path)
			if ok != tt.ok {
				t.Fatalf("ParseEntities(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); tt.ok && diff != "" {
				t.Errorf("ParseEntities(%q) mismatch (-want +got):\n%s", tt.path, diff)
			}
		})
	}
}

func TestLayoutValues(t *testing.T) {
	l := NewLayout("", []string{
		"sub-10/anat/sub-10_T1w.nii.gz",
		"sub-02/func/sub-02_task-a_run-10_bold.nii.gz",
		"sub-02/func/sub-02_task-a_run-2_bold.nii.gz",
		"participants.tsv",
	})
	if diff := cmp.Diff([]any{"02", "10"}, l.Values("subject")); diff != "" {
		t.Errorf("subject values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{2, 10}, l.Values("run")); diff != "" {
		t.Errorf("run values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"T1w", "bold", "participants"}, l.Values("suffix")); diff != "" {
		t.Errorf("suffix values mismatch (-want +got):\n%s", diff)
	}
}
