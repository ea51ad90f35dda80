package metadata

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// skipDirs are never descended into when listing dataset content.
var skipDirs = map[string]bool{
	".git":     true,
	".datalad": true,
	".svn":     true,
}

// ListFiles returns all regular files below root as sorted, slash-separated
// relative paths. Version control metadata is skipped, and so is the
// content of nested datasets.
func ListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if skipDirs[d.Name()] || isDatasetRoot(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".git") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// isDatasetRoot reports whether dir has a .git entry of its own. Submodules
// carry a .git file, standalone repositories a directory.
func isDatasetRoot(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, ".git"))
	return err == nil
}

// FilterSuffix returns the paths ending in any of the given suffixes.
func FilterSuffix(paths []string, suffixes ...string) []string {
	var out []string
	for _, p := range paths {
		for _, s := range suffixes {
			if strings.HasSuffix(p, s) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// ResolveWorkers applies the NumCPU default and caps the count at n tasks.
func ResolveWorkers(workers, n int) int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// ParallelMap calls fn for every item with at most workers goroutines and
// returns the results in input order. The first error cancels the rest.
func ParallelMap[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ResolveWorkers(workers, len(items)))
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
