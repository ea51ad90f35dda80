package importer

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/dicomsynth"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

func gitEnv(t *testing.T) {
	t.Helper()
	if !dataset.HasGit() {
		t.Skip("git not available")
	}
	for _, k := range []string{"GIT_AUTHOR_NAME", "GIT_COMMITTER_NAME"} {
		t.Setenv(k, "Test")
	}
	for _, k := range []string{"GIT_AUTHOR_EMAIL", "GIT_COMMITTER_EMAIL"} {
		t.Setenv(k, "test@example.com")
	}
	t.Setenv(ContainerEnv, "")
}

// dicomTarball writes a gzipped tarball of a synthetic two-series session.
func dicomTarball(t *testing.T, studyID string) string {
	t.Helper()
	src := t.TempDir()
	_, err := dicomsynth.Generate(dicomsynth.Options{
		OutputDir: src,
		Seed:      3,
		Width:     16,
		Height:    16,
		NoLabel:   true,
		Series: []dicomsynth.SeriesSpec{
			{PatientName: "02", PatientID: "P02", StudyID: studyID, ProtocolName: "anat-T1w", SeriesDescription: "T1w", SeriesNumber: 1, Images: 2},
			{PatientName: "02", PatientID: "P02", StudyID: studyID, ProtocolName: "func_task", SeriesDescription: "bold", SeriesNumber: 2, Images: 2},
		},
	})
	require.NoError(t, err)

	name := filepath.Join(t.TempDir(), "session.tar.gz")
	f, err := os.Create(name)
	require.NoError(t, err)
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	paths, err := metadata.ListFiles(src)
	require.NoError(t, err)
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(src, p))
		require.NoError(t, err)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: p, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}))
		_, err = tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return name
}

type countingAggregator struct{ roots []string }

func (a *countingAggregator) Aggregate(_ context.Context, root string) error {
	a.roots = append(a.roots, root)
	return nil
}

type failingAggregator struct{}

func (failingAggregator) Aggregate(context.Context, string) error {
	return errors.New("metadata store unavailable")
}

func TestCreateStudyAndImport(t *testing.T) {
	gitEnv(t)
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "study")

	results, err := CreateStudy(ctx, CreateOptions{Path: root})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, dataset.StatusOK, results[0].Status)
	assert.Equal(t, "create study raw dataset", results[1].Action)
	assert.NotEmpty(t, dataset.ID(ctx, root))

	again, err := CreateStudy(ctx, CreateOptions{Path: root})
	require.NoError(t, err)
	assert.Equal(t, dataset.StatusNotNeeded, again[0].Status)

	agg := &countingAggregator{}
	results, err = ImportDICOMs(ctx, ImportOptions{Dataset: root, Archive: dicomTarball(t, "S1"), Session: "acq100", Aggregator: agg})
	require.NoError(t, err)
	for _, r := range results {
		assert.False(t, r.Failed(), "result %s", r)
	}
	dicomDir := filepath.Join(root, "acq100", "dicoms")
	assert.Equal(t, []string{dicomDir}, agg.roots)

	v, ok, err := dataset.ConfigGet(ctx, dicomDir, "datalad.metadata.maxfieldsize")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10000000", v)
	types, err := dataset.ConfigGetAll(ctx, dicomDir, "datalad.metadata.nativetype")
	require.NoError(t, err)
	assert.Equal(t, []string{"dicom"}, types)

	spec, err := studyspec.Load(filepath.Join(root, "acq100", SpecFile))
	require.NoError(t, err)
	assert.Len(t, spec, 2)

	status, err := dataset.Git(ctx, root, "status", "--porcelain")
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestImportGuessesSession(t *testing.T) {
	gitEnv(t)
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "study")
	_, err := CreateStudy(ctx, CreateOptions{Path: root})
	require.NoError(t, err)

	_, err = ImportDICOMs(ctx, ImportOptions{Dataset: root, Archive: dicomTarball(t, "ses_42")})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "ses42", "dicoms"))
	assert.FileExists(t, filepath.Join(root, "ses42", SpecFile))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".import-", "temporary directory left behind")
	}
}

func TestImportFailureRemovesTempDir(t *testing.T) {
	gitEnv(t)
	ctx := context.Background()
	root := t.TempDir()
	bogus := filepath.Join(t.TempDir(), "empty.tar")
	require.NoError(t, os.WriteFile(bogus, make([]byte, 1024), 0o644))

	_, err := ImportDICOMs(ctx, ImportOptions{Dataset: root, Archive: bogus})
	require.Error(t, err)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImportFailureAfterGuessKeepsSession(t *testing.T) {
	gitEnv(t)
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "study")
	_, err := CreateStudy(ctx, CreateOptions{Path: root})
	require.NoError(t, err)

	_, err = ImportDICOMs(ctx, ImportOptions{Dataset: root, Archive: dicomTarball(t, "S7"), Aggregator: failingAggregator{}})
	require.ErrorContains(t, err, "metadata store unavailable")

	// The session is committed and registered in the study dataset by now.
	assert.DirExists(t, filepath.Join(root, "S7", "dicoms"))
	assert.FileExists(t, filepath.Join(root, "S7", "dicoms", ".datalad", "config"))
	gitmodules, err := os.ReadFile(filepath.Join(root, ".gitmodules"))
	require.NoError(t, err)
	assert.Contains(t, string(gitmodules), "S7/dicoms")
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	name := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(name)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = io.WriteString(w, "x")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	_, err = Extract(name, filepath.Join(dest, "out"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dest, "escape.txt"))
}

func TestExtractZip(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ok.zip")
	f, err := os.Create(name)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("series/1.dcm")
	require.NoError(t, err)
	_, err = io.WriteString(w, "data")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	n, err := Extract(name, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	data, err := os.ReadFile(filepath.Join(dest, "series", "1.dcm"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
