package nifti1

import (
	"compress/gzip"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/datalad/datalad-neuroimaging/internal/metadata"
)

func mniHeader() Header {
	h := Header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Dim:       [8]int16{4, 91, 109, 91, 2, 1, 1, 1},
		Datatype:  4,
		Bitpix:    16,
		Pixdim:    [8]float32{-1, 2, 2, 2, 6, 1, 1, 1},
		SclSlope:  float32(math.NaN()),
		SclInter:  float32(math.NaN()),
		XyztUnits: 2 | 8,
		CalMax:    8000,
		CalMin:    3000,
		QformCode: 4,
		SformCode: 4,
		SrowX:     [4]float32{-2, 0, 0, 90},
	}
	copy(h.Descrip[:], "FSL5.0")
	copy(h.Magic[:], "n+1\x00")
	return h
}

func writeHeader(t *testing.T, path string, h Header, order binary.ByteOrder, compress bool) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !compress {
		if err := binary.Write(f, order, &h); err != nil {
			t.Fatal(err)
		}
		return
	}
	zw := gzip.NewWriter(f)
	if err := binary.Write(zw, order, &h); err != nil {
		t.Fatal(err)
	}
	// extension flag plus a bit of voxel data
	if _, err := zw.Write(make([]byte, 64)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

var wantMNI = map[string]any{
	"description":            "FSL5.0",
	"spatial_resolution(mm)": []float64{2, 2, 2},
	"temporal_spacing(s)":    6.0,
	"datatype":               "int16",
	"dim":                    []any{4, 91, 109, 91, 2, 1, 1, 1},
	"pixdim":                 []any{-1.0, 2.0, 2.0, 2.0, 6.0, 1.0, 1.0, 1.0},
	"xyz_unit":               "millimeter (uo:0000016)",
	"t_unit":                 "second (uo:0000010)",
	"cal_min":                3000.0,
	"cal_max":                8000.0,
	"toffset":                0.0,
	"vox_offset":             0.0,
	"intent":                 "none",
	"sizeof_hdr":             348,
	"magic":                  "n+1",
	"sform_code":             "mni",
	"qform_code":             "mni",
	"freq_axis":              nil,
	"phase_axis":             nil,
	"slice_axis":             nil,
	"slice_start":            0,
	"slice_duration":         0.0,
	"slice_order":            "unknown",
	"slice_end":              0,
}

func TestExtractorGzip(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, filepath.Join(dir, "nifti1.nii.gz"), mniHeader(), binary.LittleEndian, true)

	res, err := New().Metadata(context.Background(), metadata.Request{
		Root:    dir,
		Paths:   []string{"nifti1.nii.gz"},
		Content: true,
	})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("got %d file records, want 1", len(res.Files))
	}
	if diff := cmp.Diff(wantMNI, res.Files[0].Metadata); diff != "" {
		t.Errorf("file metadata mismatch (-want +got):\n%s", diff)
	}
	ctx, ok := res.Dataset["@context"].(map[string]any)
	if !ok {
		t.Fatalf("dataset metadata has no @context: %v", res.Dataset)
	}
	if _, ok := ctx["spatial_resolution(mm)"]; !ok {
		t.Error("context lacks spatial_resolution(mm)")
	}
}

func TestExtractorBigEndianPair(t *testing.T) {
	dir := t.TempDir()
	h := mniHeader()
	copy(h.Magic[:], "ni1\x00")
	h.XyztUnits = 1 | 16
	h.DimInfo = 1 | 2<<2 | 3<<4
	writeHeader(t, filepath.Join(dir, "img.hdr"), h, binary.BigEndian, false)

	res, err := New().Metadata(context.Background(), metadata.Request{
		Root:    dir,
		Paths:   []string{"img.hdr"},
		Content: true,
	})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("got %d file records, want 1", len(res.Files))
	}
	md := res.Files[0].Metadata
	checks := map[string]any{
		"magic":      "ni1",
		"xyz_unit":   "meter (uo:0000008)",
		"t_unit":     "millisecond (uo:0000028)",
		"freq_axis":  0,
		"phase_axis": 1,
		"slice_axis": 2,
	}
	for k, want := range checks {
		if got := md[k]; got != want {
			t.Errorf("%s = %v, want %v", k, got, want)
		}
	}
	if diff := cmp.Diff([]float64{2000, 2000, 2000}, md["spatial_resolution(mm)"]); diff != "" {
		t.Errorf("spatial_resolution(mm) mismatch (-want +got):\n%s", diff)
	}
	if got, _ := md["temporal_spacing(s)"].(float64); math.Abs(got-0.006) > 1e-12 {
		t.Errorf("temporal_spacing(s) = %v, want 0.006", md["temporal_spacing(s)"])
	}
}

func TestExtractorSkipsNonNIfTI(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bogus.nii"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := New().Metadata(context.Background(), metadata.Request{
		Root:    dir,
		Paths:   []string{"README", "bogus.nii"},
		Content: true,
	})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(res.Files) != 0 {
		t.Errorf("got %d file records, want 0", len(res.Files))
	}
}

func TestExtractorWithoutContent(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, filepath.Join(dir, "a.nii"), mniHeader(), binary.LittleEndian, false)
	res, err := New().Metadata(context.Background(), metadata.Request{Root: dir, Paths: []string{"a.nii"}})
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(res.Dataset) != 0 || len(res.Files) != 0 {
		t.Errorf("Metadata() without content = %+v, want empty", res)
	}
}

func TestTemporalUnitsWithoutSpacing(t *testing.T) {
	h := mniHeader()
	h.XyztUnits = 2 | 32
	md := HeaderMetadata(&h, nil)
	if _, ok := md["temporal_spacing(s)"]; ok {
		t.Error("temporal_spacing(s) reported for hertz")
	}
	if got := md["t_unit"]; got != "hertz (uo:0000106)" {
		t.Errorf("t_unit = %v, want hertz (uo:0000106)", got)
	}
}

func TestIsCandidate(t *testing.T) {
	tests := map[string]bool{
		"sub-01/anat/sub-01_T1w.nii.gz": true,
		"img.NII":                       true,
		"img.hdr":                       true,
		"img.img":                       false,
		"README":                        false,
	}
	for in, want := range tests {
		if got := IsCandidate(in); got != want {
			t.Errorf("IsCandidate(%q) = %v, want %v", in, got, want)
		}
	}
}
