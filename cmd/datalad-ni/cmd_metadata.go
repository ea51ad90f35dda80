package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/dataset"
	"github.com/datalad/datalad-neuroimaging/internal/extractors"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
	"github.com/datalad/datalad-neuroimaging/internal/procedure"
	"github.com/datalad/datalad-neuroimaging/internal/store"
)

const aggregateAction = "aggregate_metadata"

// datasetRoot resolves path to the enclosing dataset root, or to path
// itself outside any dataset.
func (a *app) datasetRoot(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	root, err := dataset.FindRoot(abs)
	if errors.Is(err, dataset.ErrNotFound) {
		return abs, nil
	}
	return root, err
}

// storePath places a relative store path inside the dataset root.
func (a *app) storePath(root string) string {
	if filepath.IsAbs(a.cfg.Store) {
		return a.cfg.Store
	}
	return filepath.Join(root, a.cfg.Store)
}

func (a *app) openStore(root string) (*store.Store, error) {
	st, err := store.Open(a.storePath(root))
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	return st, nil
}

// extractorsFor picks the extractors for a dataset. Explicit names win over
// the dataset's configured native types, which win over the tool config.
// The dataset may disable per-file metadata of an extractor and lower the
// DICOM field size limit.
func (a *app) extractorsFor(ctx context.Context, root string, names []string) ([]metadata.Extractor, map[string]bool, error) {
	cfg := *a.cfg
	noContent := make(map[string]bool)
	if !cfg.DICOM.AggregateContent {
		noContent["dicom"] = true
	}

	if dataset.IsRepo(root) {
		if len(names) == 0 {
			native, err := dataset.ConfigGetAll(ctx, root, procedure.NativeTypeKey)
			if err != nil {
				return nil, nil, err
			}
			names = native
		}
		if v, ok, err := dataset.ConfigGet(ctx, root, "datalad.metadata.maxfieldsize"); err == nil && ok {
			if n, err := strconv.Atoi(v); err == nil {
				cfg.DICOM.MaxFieldSize = n
			}
		}
	}
	if len(names) == 0 {
		names = cfg.Extractors
	}

	exs, err := extractors.Registry(&cfg).Select(names)
	if err != nil {
		return nil, nil, err
	}
	if dataset.IsRepo(root) {
		for _, ex := range exs {
			v, ok, err := dataset.ConfigGet(ctx, root, "datalad.metadata.aggregate-content-"+ex.Name())
			if err == nil && ok {
				if b, err := strconv.ParseBool(v); err == nil && !b {
					noContent[ex.Name()] = true
				}
			}
		}
	}
	return exs, noContent, nil
}

func (a *app) extractCmd() *cobra.Command {
	var names []string
	var content bool
	cmd := &cobra.Command{
		Use:   "extract [PATH]",
		Short: "Run metadata extractors over a dataset and print the result as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := a.datasetRoot(firstArg(args))
			if err != nil {
				return err
			}
			exs, _, err := a.extractorsFor(ctx, root, names)
			if err != nil {
				return err
			}
			runner := metadata.Runner{Extractors: exs, Workers: a.cfg.Workers, Content: content, Logger: a.logger}
			outcomes, err := runner.Run(ctx, root)
			if err != nil {
				return err
			}

			type output struct {
				Extractor string                  `json:"extractor"`
				Dataset   map[string]any          `json:"dataset,omitempty"`
				Files     []metadata.FileMetadata `json:"files,omitempty"`
				Error     string                  `json:"error,omitempty"`
			}
			out := make([]output, 0, len(outcomes))
			for _, o := range outcomes {
				rec := output{Extractor: o.Extractor}
				if o.Err != nil {
					rec.Error = o.Err.Error()
				} else if o.Result != nil {
					rec.Dataset = o.Result.Dataset
					rec.Files = o.Result.Files
				}
				out = append(out, rec)
			}
			return writeJSON(a.out, out)
		},
	}
	cmd.Flags().StringSliceVarP(&names, "extractor", "e", nil, "Extractors to run (default: dataset native types or configured set)")
	cmd.Flags().BoolVar(&content, "content", true, "Include per-file metadata")
	return cmd
}

func (a *app) aggregateCmd() *cobra.Command {
	var names []string
	var watch, recursive bool
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "aggregate [PATH]",
		Short: "Extract dataset metadata into the searchable store",
		Long: `Runs the enabled extractors over a dataset and replaces its entry in the
metadata store. With --recursive, nested datasets are aggregated into the
same store and into their own. With --watch, the dataset is re-aggregated whenever its content
changes until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := a.datasetRoot(firstArg(args))
			if err != nil {
				return err
			}
			st, err := a.openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			aggregate := func(ctx context.Context) error {
				roots := []string{root}
				if recursive {
					subs, err := subdatasets(root)
					if err != nil {
						return err
					}
					roots = append(roots, subs...)
				}
				var results []dataset.Result
				for _, r := range roots {
					res := dataset.Result{Action: aggregateAction, Status: dataset.StatusOK, Path: r, Type: "dataset"}
					if err := a.aggregateOne(ctx, st, r, names); err != nil {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						res.Status = dataset.StatusError
						res.Message = err.Error()
					}
					results = append(results, res)
				}
				return printResults(a.out, results...)
			}

			if err := aggregate(ctx); err != nil && !watch {
				return err
			}
			if !watch {
				return nil
			}
			return store.Watch(ctx, root, debounce, a.logger, aggregate)
		},
	}
	cmd.Flags().StringSliceVarP(&names, "extractor", "e", nil, "Extractors to run (default: dataset native types or configured set)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Also aggregate nested datasets")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-aggregate when the dataset changes")
	cmd.Flags().DurationVar(&debounce, "debounce", store.DefaultDebounce, "Quiet period before re-aggregating in watch mode")
	return cmd
}

// aggregateOne stores the metadata of root in st. A nested dataset with a
// store of its own gets the same records there, so queries run from inside
// it find them.
func (a *app) aggregateOne(ctx context.Context, st *store.Store, root string, names []string) error {
	exs, noContent, err := a.extractorsFor(ctx, root, names)
	if err != nil {
		return err
	}
	var mirrors []*store.Store
	if own := a.storePath(root); own != st.Path() {
		ownStore, err := a.openStore(root)
		if err != nil {
			return err
		}
		defer ownStore.Close()
		mirrors = append(mirrors, ownStore)
	}
	agg := &store.Aggregator{
		Mirrors:    mirrors,
		Store:      st,
		Extractors: exs,
		Content:    true,
		NoContent:  noContent,
		Workers:    a.cfg.Workers,
		Logger:     a.logger,
		ProgressCallback: func(done, total int, name string) {
			a.logger.Debug("Extractor finished", zap.String("extractor", name), zap.Int("done", done), zap.Int("total", total))
		},
	}
	return agg.Aggregate(ctx, root)
}

// subdatasets finds nested dataset roots below root.
func subdatasets(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || p == root {
			return nil
		}
		if d.Name() == ".git" || d.Name() == ".datalad" {
			return filepath.SkipDir
		}
		if _, err := os.Lstat(filepath.Join(p, ".git")); err == nil {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func (a *app) searchCmd() *cobra.Command {
	var dsPath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search aggregated metadata",
		Long: `Searches the metadata store. Each term is either key:value or a plain
value, and all terms must match. Keys are dotted field names and may be
shortened to any suffix, so subject.sex matches bids.subject.sex. Values
match case-insensitively anywhere in the field.

Example:
  datalad-ni search bids.subject.sex:female task:rest`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			st, err := a.openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			hits, err := st.Search(cmd.Context(), store.ParseQuery(args))
			if err != nil {
				return err
			}
			a.logger.Debug("Search finished", zap.Strings("query", args), zap.Int("hits", len(hits)))
			if asJSON {
				return writeJSON(a.out, hits)
			}
			for _, h := range hits {
				fmt.Fprintln(a.out, formatHit(h))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dsPath, "dataset", "d", "", "Dataset whose store is searched (default: current)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print hits as JSON")
	return cmd
}

func formatHit(h store.Hit) string {
	location := h.Root
	if h.Path != "" {
		location = filepath.Join(h.Root, filepath.FromSlash(h.Path))
	}
	keys := make([]string, 0, len(h.Matches))
	for k := range h.Matches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := []string{location}
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(h.Matches[k], ", "))
	}
	return strings.Join(parts, "\t")
}

func (a *app) metadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata [PATH]",
		Short: "Print the aggregated metadata of a dataset or file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(firstArg(args))
			if err != nil {
				return err
			}
			root, err := a.datasetRoot(abs)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, abs)
			if err != nil {
				return err
			}
			if rel == "." {
				rel = ""
			}
			st, err := a.openStore(root)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.Get(cmd.Context(), root, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			return writeJSON(a.out, rec)
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
