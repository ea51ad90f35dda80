package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/cmd/datalad-ni/review"
	"github.com/datalad/datalad-neuroimaging/internal/extractors/dicom"
	"github.com/datalad/datalad-neuroimaging/internal/heuristic"
	"github.com/datalad/datalad-neuroimaging/internal/importer"
	"github.com/datalad/datalad-neuroimaging/internal/metadata"
	"github.com/datalad/datalad-neuroimaging/internal/store"
	"github.com/datalad/datalad-neuroimaging/internal/studyspec"
)

func (a *app) createStudyCmd() *cobra.Command {
	var containerURL string
	cmd := &cobra.Command{
		Use:   "create-study PATH",
		Short: "Create a raw study dataset with the import container installed",
		Long: `Creates a dataset for raw DICOM acquisitions. The import container is
cloned from $` + importer.ContainerEnv + ` or --container-url; with neither, the
study is created without it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if containerURL == "" {
				containerURL = a.cfg.Import.ContainerURL
			}
			results, err := importer.CreateStudy(cmd.Context(), importer.CreateOptions{
				Path:         args[0],
				ContainerURL: containerURL,
				Logger:       a.logger,
			})
			if perr := printResults(a.out, results...); err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&containerURL, "container-url", "", "Import container to install (default: configured value)")
	return cmd
}

// importAggregator aggregates imported DICOM datasets into the study store.
type importAggregator struct {
	a  *app
	st *store.Store
}

func (i importAggregator) Aggregate(ctx context.Context, root string) error {
	return i.a.aggregateOne(ctx, i.st, root, nil)
}

func (a *app) importDICOMsCmd() *cobra.Command {
	var dsPath string
	var noAggregate bool
	cmd := &cobra.Command{
		Use:   "import-dicoms ARCHIVE [SESSION]",
		Short: "Import a DICOM tarball or zip archive as a study session",
		Long: `Extracts ARCHIVE into SESSION/dicoms as a dataset of its own, registers it
in the study dataset and prefills SESSION/` + importer.SpecFile + ` from the DICOM
headers. Without SESSION the label is taken from the StudyID or PatientID
of the first DICOM file.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			opts := importer.ImportOptions{
				Dataset: root,
				Archive: args[0],
				Logger:  a.logger,
			}
			if len(args) > 1 {
				opts.Session = args[1]
			}
			if !noAggregate {
				st, err := a.openStore(root)
				if err != nil {
					return err
				}
				defer st.Close()
				opts.Aggregator = importAggregator{a: a, st: st}
			}
			results, err := importer.ImportDICOMs(ctx, opts)
			if perr := printResults(a.out, results...); err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&dsPath, "dataset", "d", "", "Study dataset (default: current)")
	cmd.Flags().BoolVar(&noAggregate, "no-aggregate", false, "Do not add the imported metadata to the store")
	return cmd
}

// dicomSource reads DICOM metadata from the store when the dataset was
// aggregated, extracting it on demand otherwise.
func (a *app) dicomSource(root string) (studyspec.Source, func(), error) {
	extract := studyspec.ExtractSource{
		Extractors: []metadata.Extractor{dicom.New(a.cfg.DICOM.MaxFieldSize)},
		Workers:    a.cfg.Workers,
		Logger:     a.logger,
	}
	if _, err := os.Stat(a.storePath(root)); err != nil {
		return extract, func() {}, nil
	}
	st, err := a.openStore(root)
	if err != nil {
		return nil, nil, err
	}
	return store.Source{Store: st, Fallback: extract}, func() { st.Close() }, nil
}

func (a *app) dicom2specCmd() *cobra.Command {
	var dsPath, spec string
	var noCommit bool
	cmd := &cobra.Command{
		Use:   "dicom2spec PATH...",
		Short: "Derive a study specification from DICOM metadata",
		Long: `Reads the DICOM series metadata of each PATH and merges one entry per
series into the specification, matched by series UID. Existing entries are
updated; fields added by hand are kept.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			source, closeSource, err := a.dicomSource(root)
			if err != nil {
				return err
			}
			defer closeSource()

			results, err := studyspec.Dicom2Spec(cmd.Context(), studyspec.Options{
				Dataset:  root,
				Paths:    args,
				Spec:     spec,
				Source:   source,
				NoCommit: noCommit,
				Logger:   a.logger,
			})
			if perr := printResults(a.out, results...); err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&dsPath, "dataset", "d", "", "Dataset the specification belongs to (default: current)")
	cmd.Flags().StringVarP(&spec, "spec", "s", importer.SpecFile, "Specification file, relative to the dataset")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Do not commit the specification")
	return cmd
}

func (a *app) reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review SPEC",
		Short: "Interactively edit and approve study specification entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := review.Run(args[0])
			if err != nil {
				return err
			}
			if saved {
				a.logger.Info("Saved study specification", zap.String("path", args[0]))
			}
			return nil
		},
	}
}

func (a *app) heuristicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heuristic",
		Short: "Study specification driven conversion heuristic",
	}

	var specPath string
	loadSpec := func() ([]studyspec.Entry, error) {
		if specPath != "" {
			return studyspec.Load(specPath)
		}
		spec, err := heuristic.LoadStudySpec()
		if err == nil && spec == nil {
			return nil, fmt.Errorf("no specification: use --spec or set %s", heuristic.SpecEnv)
		}
		return spec, err
	}
	cmd.PersistentFlags().StringVarP(&specPath, "spec", "s", "", "Specification file (default: $"+heuristic.SpecEnv+")")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check every specification entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec()
			if err != nil {
				return err
			}
			invalid := 0
			for i := range spec {
				convert, err := heuristic.ValidateSpec(&spec[i], a.logger)
				switch {
				case err != nil:
					invalid++
					fmt.Fprintf(a.out, "%s\tinvalid\t%s\n", spec[i].UID, err)
				case convert:
					fmt.Fprintf(a.out, "%s\tconvert\t%s\n", spec[i].UID, heuristic.Template(&spec[i]))
				default:
					fmt.Fprintf(a.out, "%s\tskip\n", spec[i].UID)
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d entries invalid", invalid, len(spec))
			}
			return nil
		},
	}

	var dicominfo string
	infotodict := &cobra.Command{
		Use:   "infotodict [DICOM_DATASET]",
		Short: "Assign DICOM series to BIDS output keys",
		Long: `Prints the conversion of each series as JSON. Series come from a
dicominfo.tsv table (--dicominfo) or from the DICOM metadata of a dataset.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec()
			if err != nil {
				return err
			}
			var seqinfo []heuristic.SeqInfo
			switch {
			case dicominfo != "":
				seqinfo, err = heuristic.ReadDicomInfoFile(dicominfo)
			case len(args) == 1:
				seqinfo, err = a.seqInfoFromDataset(cmd.Context(), args[0])
			default:
				err = errors.New("either --dicominfo or a DICOM dataset is required")
			}
			if err != nil {
				return err
			}
			conversions, err := heuristic.InfoToDict(spec, seqinfo, a.logger)
			if err != nil {
				return err
			}
			return writeJSON(a.out, conversions)
		},
	}
	infotodict.Flags().StringVar(&dicominfo, "dicominfo", "", "dicominfo.tsv table describing the series")

	cmd.AddCommand(validate, infotodict)
	return cmd
}

func (a *app) seqInfoFromDataset(ctx context.Context, path string) ([]heuristic.SeqInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	// the store lives in the study dataset, not the DICOM dataset
	root, err := a.datasetRoot("")
	if err != nil {
		return nil, err
	}
	source, closeSource, err := a.dicomSource(root)
	if err != nil {
		return nil, err
	}
	defer closeSource()
	md, err := source.DatasetMetadata(ctx, abs)
	if err != nil {
		return nil, err
	}
	return heuristic.SeqInfoFromMetadata(md)
}
