package dicomsynth

import (
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func getString(t *testing.T, ds dicom.Dataset, tg tag.Tag) string {
	t.Helper()
	elem, err := ds.FindElementByTag(tg)
	if err != nil {
		t.Fatalf("FindElementByTag(%v) returned error: %v", tg, err)
	}
	vals := dicom.MustGetStrings(elem.Value)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func TestGenerate(t *testing.T) {
	outDir := t.TempDir()
	var progress int
	files, err := Generate(Options{
		OutputDir: outDir,
		Seed:      42,
		Width:     32,
		Height:    32,
		Workers:   2,
		Series: []SeriesSpec{
			{PatientName: "Doe^Jane", ProtocolName: "anat-T1w", SeriesDescription: "T1", SeriesNumber: 1, Images: 2},
			{PatientName: "Doe^Jane", ProtocolName: "func-rest", SeriesDescription: "rest", SeriesNumber: 2, Images: 3},
		},
		ProgressCallback: func(current, total int) {
			if total != 5 {
				t.Errorf("progress total = %d, want 5", total)
			}
			progress = current
		},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("Generate wrote %d files, want 5", len(files))
	}
	if progress != 5 {
		t.Errorf("last progress = %d, want 5", progress)
	}
	if files[0].SeriesUID == files[2].SeriesUID {
		t.Error("series 1 and 2 share a SeriesInstanceUID")
	}
	if files[0].SeriesUID != files[1].SeriesUID {
		t.Error("images of one series have different SeriesInstanceUIDs")
	}
	if files[0].StudyUID != files[4].StudyUID {
		t.Error("series of one study have different StudyInstanceUIDs")
	}

	wantPath := filepath.Join(outDir, "1", "2_func-rest", "IM0003.dcm")
	if files[4].Path != wantPath {
		t.Errorf("files[4].Path = %q, want %q", files[4].Path, wantPath)
	}

	parsed, err := dicom.ParseFile(files[4].Path, nil)
	if err != nil {
		t.Fatalf("ParseFile(%q) returned error: %v", files[4].Path, err)
	}
	if got := getString(t, parsed, tag.SeriesInstanceUID); got != files[4].SeriesUID {
		t.Errorf("SeriesInstanceUID = %q, want %q", got, files[4].SeriesUID)
	}
	if got := getString(t, parsed, tag.ProtocolName); got != "func-rest" {
		t.Errorf("ProtocolName = %q, want %q", got, "func-rest")
	}
	if got := getString(t, parsed, tag.InstanceNumber); got != "3" {
		t.Errorf("InstanceNumber = %q, want %q", got, "3")
	}
}

func TestGenerateIsReproducible(t *testing.T) {
	opts := func(dir string) Options {
		return Options{OutputDir: dir, Seed: 7, Width: 16, Height: 16, NoLabel: true, Series: DemoStudy(1, 7)}
	}
	a, err := Generate(opts(t.TempDir()))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	b, err := Generate(opts(t.TempDir()))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	for i := range a {
		if a[i].SOPInstanceUID != b[i].SOPInstanceUID {
			t.Errorf("file %d: SOPInstanceUID differs between runs", i)
		}
		da, _ := os.ReadFile(a[i].Path)
		db, _ := os.ReadFile(b[i].Path)
		if string(da) != string(db) {
			t.Errorf("file %d: content differs between runs", i)
		}
	}
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no output dir", Options{Series: []SeriesSpec{{PatientName: "A", ProtocolName: "p", Images: 1}}}},
		{"no series", Options{OutputDir: t.TempDir()}},
		{"zero images", Options{OutputDir: t.TempDir(), Series: []SeriesSpec{{PatientName: "A", ProtocolName: "p"}}}},
		{"no protocol", Options{OutputDir: t.TempDir(), Series: []SeriesSpec{{PatientName: "A", Images: 1}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Generate(tc.opts); err == nil {
				t.Errorf("Generate(%s) should fail", tc.name)
			}
		})
	}
}

func TestDeterministicUID(t *testing.T) {
	a := DeterministicUID("x")
	if a != DeterministicUID("x") {
		t.Error("DeterministicUID is not stable")
	}
	if a == DeterministicUID("y") {
		t.Error("DeterministicUID collides for different keys")
	}
	if !strings.HasPrefix(a, "2.25.") || len(a) > 64 {
		t.Errorf("DeterministicUID = %q, want 2.25 root within 64 chars", a)
	}
	if NewUID() == NewUID() {
		t.Error("NewUID returned the same UID twice")
	}
}

func TestDemoStudy(t *testing.T) {
	specs := DemoStudy(3, 1)
	if len(specs) != 3*len(DemoProtocols) {
		t.Fatalf("DemoStudy(3) returned %d series, want %d", len(specs), 3*len(DemoProtocols))
	}
	for _, s := range specs {
		if !strings.Contains(s.PatientName, "^") {
			t.Errorf("PatientName %q is not in DICOM person-name format", s.PatientName)
		}
	}
	if specs[0].PatientName != specs[1].PatientName {
		t.Error("series of one subject should share the patient name")
	}
}

func TestGenerateVendorHeaders(t *testing.T) {
	files, err := Generate(Options{
		OutputDir:     t.TempDir(),
		Seed:          3,
		Width:         16,
		Height:        16,
		NoLabel:       true,
		VendorHeaders: true,
		Series:        DemoStudy(2, 3),
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	for _, f := range []GeneratedFile{files[0], files[len(files)-1]} {
		parsed, err := dicom.ParseFile(f.Path, nil)
		if err != nil {
			t.Fatalf("ParseFile(%q) returned error: %v", f.Path, err)
		}
		private := 0
		for _, elem := range parsed.Elements {
			if elem.Tag.Group%2 == 1 {
				private++
			}
		}
		if private == 0 {
			t.Errorf("%s: no private elements written", f.Path)
		}
		if got := getString(t, parsed, tag.SeriesInstanceUID); got != f.SeriesUID {
			t.Errorf("SeriesInstanceUID = %q, want %q", got, f.SeriesUID)
		}
	}
}

func TestVendorElements(t *testing.T) {
	rng := randv2.New(randv2.NewPCG(1, 1))
	for _, m := range []string{"SIEMENS", "GE MEDICAL SYSTEMS", "Philips"} {
		if len(vendorElements(m, rng)) == 0 {
			t.Errorf("vendorElements(%q) returned nothing", m)
		}
	}
	if got := vendorElements("ACME", rng); got != nil {
		t.Errorf("vendorElements(ACME) = %v, want nil", got)
	}
	csa := encodeCSA([]csaElement{{Name: "B_value", VM: 1, VR: "IS", SyngoDT: 6, Values: []string{"0"}}})
	if !strings.HasPrefix(string(csa), "SV10") || len(csa)%2 != 0 {
		t.Errorf("encodeCSA produced %d bytes starting %q", len(csa), csa[:4])
	}
}

func TestGenerateQuirks(t *testing.T) {
	files, err := Generate(Options{
		OutputDir: t.TempDir(),
		Seed:      11,
		Width:     16,
		Height:    16,
		NoLabel:   true,
		Quirks:    []Quirk{QuirkSpecialChars, QuirkPartialDates, QuirkMissingTags},
		Series:    DemoStudy(1, 11),
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	first, err := dicom.ParseFile(files[0].Path, nil)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}
	last, err := dicom.ParseFile(files[len(files)-1].Path, nil)
	if err != nil {
		t.Fatalf("ParseFile returned error: %v", err)
	}

	name := getString(t, first, tag.PatientName)
	if isASCII(name) {
		t.Errorf("PatientName %q has no special characters", name)
	}
	if got := getString(t, last, tag.PatientName); got != name {
		t.Errorf("PatientName differs between series of one patient: %q vs %q", got, name)
	}
	if got := getString(t, first, tag.SpecificCharacterSet); got != "ISO_IR 192" {
		t.Errorf("SpecificCharacterSet = %q, want ISO_IR 192", got)
	}
	if got := getString(t, first, tag.PatientBirthDate); len(got) != 4 && len(got) != 6 {
		t.Errorf("PatientBirthDate = %q, want YYYY or YYYYMM", got)
	}
	missing := 0
	for _, tg := range omittable {
		if _, err := first.FindElementByTag(tg); err != nil {
			missing++
		}
	}
	if missing == 0 {
		t.Error("no optional attribute was omitted")
	}
}

func TestLongNamesQuirk(t *testing.T) {
	spec := SeriesSpec{PatientName: "Doe^Jane", PatientSex: "F"}
	applyQuirks(&spec, []Quirk{QuirkLongNames}, map[string]SeriesSpec{}, randv2.New(randv2.NewPCG(1, 2)))
	if len(spec.PatientID) != loMaxLength {
		t.Errorf("len(PatientID) = %d, want %d", len(spec.PatientID), loMaxLength)
	}
	if len(spec.PatientName) > loMaxLength || spec.PatientName == "Doe^Jane" {
		t.Errorf("PatientName = %q, want a long name within %d chars", spec.PatientName, loMaxLength)
	}
}

func TestParseQuirks(t *testing.T) {
	got, err := ParseQuirks("special-chars, missing-tags")
	if err != nil {
		t.Fatalf("ParseQuirks returned error: %v", err)
	}
	if len(got) != 2 || got[0] != QuirkSpecialChars || got[1] != QuirkMissingTags {
		t.Errorf("ParseQuirks = %v", got)
	}
	if got, err := ParseQuirks(""); err != nil || got != nil {
		t.Errorf("ParseQuirks(\"\") = %v, %v", got, err)
	}
	if _, err := ParseQuirks("bogus"); err == nil || !strings.Contains(err.Error(), "valid quirks") {
		t.Errorf("ParseQuirks(bogus) error = %v", err)
	}
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}
