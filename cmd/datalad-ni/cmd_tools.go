package main

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/bidsapp"
	"github.com/datalad/datalad-neuroimaging/internal/dicomsynth"
	"github.com/datalad/datalad-neuroimaging/internal/extractors"
	"github.com/datalad/datalad-neuroimaging/internal/mcpserver"
	"github.com/datalad/datalad-neuroimaging/internal/procedure"
)

func (a *app) bidsappCmd() *cobra.Command {
	var dsPath string
	var noCommit bool
	cmd := &cobra.Command{
		Use:   "bidsapp CMD",
		Short: "Run a configured BIDS-App container in the dataset",
		Long: `Runs the BIDS-App configured under datalad.neuroimaging.bidsapp.CMD.* in
the dataset configuration and commits the outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			results, err := bidsapp.Run(cmd.Context(), bidsapp.Options{
				Dataset:  root,
				Cmd:      args[0],
				Stdout:   a.out,
				Stderr:   a.errOut,
				NoCommit: noCommit,
				Logger:   a.logger,
			})
			if perr := printResults(a.out, results...); err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&dsPath, "dataset", "d", "", "Dataset to run in (default: current)")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Do not commit the outcome")
	return cmd
}

func (a *app) runProcedureCmd() *cobra.Command {
	var dsPath string
	var list bool
	cmd := &cobra.Command{
		Use:   "run-procedure NAME [ARG...]",
		Short: "Apply a dataset configuration procedure",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, name := range procedure.Names() {
					fmt.Fprintln(a.out, name)
				}
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("a procedure name is required")
			}
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			res, err := procedure.Run(cmd.Context(), root, args[0], args[1:], a.logger)
			if err != nil {
				return err
			}
			return printResults(a.out, res)
		},
	}
	cmd.Flags().StringVarP(&dsPath, "dataset", "d", "", "Dataset to configure (default: current)")
	cmd.Flags().BoolVar(&list, "list", false, "List available procedures")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	var dsPath string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve extraction, search and dicom2spec as MCP tools over stdio",
		Args:  cobra.NoArgs,
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

			a.logger.Info("Starting MCP server on stdio", zap.String("store", st.Path()))
			return mcpserver.Serve(cmd.Context(), mcpserver.Options{
				Version:    version,
				Registry:   extractors.Registry(a.cfg),
				Extractors: a.cfg.Extractors,
				Store:      st,
				Workers:    a.cfg.Workers,
				Logger:     a.logger,
			})
		},
	}
	cmd.Flags().StringVarP(&dsPath, "dataset", "d", "", "Dataset whose store backs search (default: current)")
	return cmd
}

func (a *app) synthDICOMsCmd() *cobra.Command {
	var output, archive, quirks string
	var subjects, size int
	var seed int64
	var noLabel, vendorHeaders bool
	cmd := &cobra.Command{
		Use:   "synth-dicoms",
		Short: "Write a synthetic MR study for trying the import pipeline",
		Long: `Generates a small MR study with one session per subject. Each session
holds a T1w series and a resting state series laid out as
<StudyID>/<SeriesNumber>_<ProtocolName>/IM<n>.dcm. With --archive the
output is also packed into a gzipped tarball ready for import-dicoms.

--vendor-headers adds the private header blocks real scanners write
(Siemens CSA, GE and Philips groups). --quirks introduces header
irregularities: special-chars, long-names, missing-tags, partial-dates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subjects < 1 {
				return fmt.Errorf("--subjects must be > 0")
			}
			parsedQuirks, err := dicomsynth.ParseQuirks(quirks)
			if err != nil {
				return err
			}
			files, err := dicomsynth.Generate(dicomsynth.Options{
				OutputDir:     output,
				Series:        dicomsynth.DemoStudy(subjects, seed),
				Width:         size,
				Height:        size,
				Seed:          seed,
				Workers:       a.cfg.Workers,
				NoLabel:       noLabel,
				VendorHeaders: vendorHeaders,
				Quirks:        parsedQuirks,
				ProgressCallback: func(current, total int) {
					a.logger.Debug("Wrote DICOM file", zap.Int("current", current), zap.Int("total", total))
				},
			})
			if err != nil {
				return err
			}
			a.logger.Info("Generated DICOM files", zap.Int("files", len(files)), zap.String("output", output))
			fmt.Fprintf(a.out, "Generated %d DICOM files in %s\n", len(files), output)
			if archive != "" {
				if err := writeTarball(archive, output); err != nil {
					return fmt.Errorf("write archive: %w", err)
				}
				fmt.Fprintf(a.out, "Packed into %s\n", archive)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "dicom_study", "Output directory")
	f.StringVar(&archive, "archive", "", "Also pack the output into this .tar.gz file")
	f.IntVar(&subjects, "subjects", 1, "Number of subjects")
	f.IntVar(&size, "size", 64, "Image width and height in pixels")
	f.Int64Var(&seed, "seed", 42, "Seed for UIDs, names and pixel noise")
	f.BoolVar(&noLabel, "no-label", false, "Skip the burned-in image label")
	f.BoolVar(&vendorHeaders, "vendor-headers", false, "Add vendor private header blocks")
	f.StringVar(&quirks, "quirks", "", "Comma separated header quirks to introduce")
	return cmd
}

// writeTarball packs the content of dir into a gzipped tar at path.
func writeTarball(path, dir string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == dir {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

