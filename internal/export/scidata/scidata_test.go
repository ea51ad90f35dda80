package scidata

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
)

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

var minimalBIDS = map[string]string{
	"participants.tsv": "participant_id\tgender\tage\thandedness\nsub-01\tm\t30\tr\nsub-15\tf\t35\tl\n",
	"dataset_description.json": `{
    "Name": "demo_ds",
    "BIDSVersion": "1.0.0",
    "Description": "this is for play",
    "License": "PDDL",
    "Authors": ["Betty", "Tom"]
}`,
	"sub-01/anat/sub-01_T1w.nii.gz":                "",
	"sub-15/func/sub-15_task-nix_run-1_bold.nii.gz": "",
}

func read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestExportMinimal(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, minimalBIDS)
	out := filepath.Join(t.TempDir(), "isatab")

	res, err := Export(context.Background(), Options{
		Dataset: root, Output: out,
		RepoName: "dummy", RepoAccession: "ds1", RepoURL: "http://example.com",
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Status != dataset.StatusOK || res.Path != out {
		t.Fatalf("Export() = %+v", res)
	}

	inv := read(t, filepath.Join(out, "i_Investigation.txt"))
	for _, want := range []string{
		"Betty\tTom",
		"Study Assay File Name\ta_mri_t1w.txt\ta_mri_bold.txt",
		"Comment[Data Repository]\tdummy\nComment[Data Record Accession]\tds1\nComment[Data Record URI]\thttp://example.com",
	} {
		if !strings.Contains(inv, want) {
			t.Errorf("investigation lacks %q:\n%s", want, inv)
		}
	}

	wantStudy := "Source Name\tCharacteristics[organism]\tCharacteristics[organism part]\tProtocol REF\tSample Name\tCharacteristics[age at scan]\tCharacteristics[handedness]\tCharacteristics[sex]\n" +
		"01\thomo sapiens\tbrain\tParticipant recruitment\t01\t30\tr\tmale\n" +
		"15\thomo sapiens\tbrain\tParticipant recruitment\t15\t35\tl\tfemale\n"
	if diff := cmp.Diff(wantStudy, read(t, filepath.Join(out, "s_study.txt"))); diff != "" {
		t.Errorf("s_study.txt mismatch (-want +got):\n%s", diff)
	}

	wantBold := "Sample Name\tProtocol REF\tParameter Value[modality]\tAssay Name\tRaw Data File\tComment[Data Repository]\tComment[Data Record Accession]\tComment[Data Record URI]\tFactor Value[task]\n" +
		"15\tMagnetic Resonance Imaging\tbold\tsub-15_task-nix_run-1\tsub-15/func/sub-15_task-nix_run-1_bold.nii.gz\tdummy\tds1\thttp://example.com\tnix\n"
	if diff := cmp.Diff(wantBold, read(t, filepath.Join(out, "a_mri_bold.txt"))); diff != "" {
		t.Errorf("a_mri_bold.txt mismatch (-want +got):\n%s", diff)
	}

	wantT1w := "Sample Name\tProtocol REF\tParameter Value[modality]\tAssay Name\tRaw Data File\tComment[Data Repository]\tComment[Data Record Accession]\tComment[Data Record URI]\n" +
		"01\tMagnetic Resonance Imaging\tT1w\tsub-01\tsub-01/anat/sub-01_T1w.nii.gz\tdummy\tds1\thttp://example.com\n"
	if diff := cmp.Diff(wantT1w, read(t, filepath.Join(out, "a_mri_t1w.txt"))); diff != "" {
		t.Errorf("a_mri_t1w.txt mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"a_mri_bold.txt", "a_mri_t1w.txt", "i_Investigation.txt", "s_study.txt"}, names); diff != "" {
		t.Errorf("output files mismatch (-want +got):\n%s", diff)
	}
}

func TestExportRequiresRepoInfo(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, minimalBIDS)
	if _, err := Export(context.Background(), Options{Dataset: root, RepoName: "dummy"}); err == nil {
		t.Error("Export() without accession and URL error = nil")
	}
}

func TestExportNonBIDS(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"file_up": "some_content", "dir/file1_down": "one"})
	res, err := Export(context.Background(), Options{
		Dataset: root, Output: t.TempDir(),
		RepoName: "dummy", RepoAccession: "ds1", RepoURL: "http://example.com",
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !res.Failed() {
		t.Errorf("Export(non-BIDS) status = %s, want a failure", res.Status)
	}
}

func TestStudyTableWithoutParticipants(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for k, v := range minimalBIDS {
		if k != "participants.tsv" {
			files[k] = v
		}
	}
	writeTree(t, root, files)
	out := t.TempDir()
	if _, err := Export(context.Background(), Options{
		Dataset: root, Output: out,
		RepoName: "dummy", RepoAccession: "ds1", RepoURL: "http://example.com",
	}); err != nil {
		t.Fatal(err)
	}
	want := "Source Name\tCharacteristics[organism]\tCharacteristics[organism part]\tProtocol REF\tSample Name\n" +
		"01\thomo sapiens\tbrain\tParticipant recruitment\t01\n" +
		"15\thomo sapiens\tbrain\tParticipant recruitment\t15\n"
	if diff := cmp.Diff(want, read(t, filepath.Join(out, "s_study.txt"))); diff != "" {
		t.Errorf("s_study.txt mismatch (-want +got):\n%s", diff)
	}
}
