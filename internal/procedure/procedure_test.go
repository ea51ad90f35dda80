package procedure

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
)

func newRepo(t *testing.T) string {
	t.Helper()
	if !dataset.HasGit() {
		t.Skip("git not available")
	}
	ctx := context.Background()
	root := t.TempDir()
	if _, err := dataset.Init(ctx, root); err != nil {
		t.Fatal(err)
	}
	for k, v := range map[string]string{"user.name": "Test", "user.email": "test@example.com"} {
		if _, err := dataset.Git(ctx, root, "config", k, v); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestBIDSDataset(t *testing.T) {
	ctx := context.Background()
	root := newRepo(t)

	res, err := Run(ctx, root, "cfg_bids_dataset", nil, nil)
	if err != nil || res.Status != dataset.StatusOK {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	attrs, err := os.ReadFile(filepath.Join(root, ".gitattributes"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(attrs), ".bidsignore annex.largefiles=nothing\n") {
		t.Errorf(".gitattributes = %q", attrs)
	}
	types, err := dataset.ConfigGetAll(ctx, root, NativeTypeKey)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"bids", "nifti1"}, types); diff != "" {
		t.Errorf("native types mismatch (-want +got):\n%s", diff)
	}

	sha := dataset.RefCommit(ctx, root)
	res, err = Run(ctx, root, "cfg_bids_dataset", nil, nil)
	if err != nil || res.Status != dataset.StatusNotNeeded {
		t.Errorf("second Run() = %+v, %v; want notneeded", res, err)
	}
	if got := dataset.RefCommit(ctx, root); got != sha {
		t.Errorf("second run committed: %s -> %s", sha, got)
	}
	if out, _ := dataset.Git(ctx, root, "status", "--porcelain"); out != "" {
		t.Errorf("repository not clean:\n%s", out)
	}
}

func TestBIDSDatasetKeepsExistingAttributes(t *testing.T) {
	ctx := context.Background()
	root := newRepo(t)
	if err := os.WriteFile(filepath.Join(root, ".gitattributes"), []byte("README annex.largefiles=nothing\n* annex.backend=MD5E"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(ctx, root, "cfg_bids_dataset", nil, nil); err != nil {
		t.Fatal(err)
	}
	attrs, _ := os.ReadFile(filepath.Join(root, ".gitattributes"))
	if n := strings.Count(string(attrs), "README annex.largefiles=nothing"); n != 1 {
		t.Errorf("README entry appears %d times in:\n%s", n, attrs)
	}
	if !strings.Contains(string(attrs), "* annex.backend=MD5E\nCHANGES annex.largefiles=nothing\n") {
		t.Errorf(".gitattributes = %q", attrs)
	}
}

func TestRunUnknown(t *testing.T) {
	if _, err := Run(context.Background(), t.TempDir(), "cfg_nope", nil, nil); err == nil {
		t.Error("Run(unknown) error = nil")
	}
}
