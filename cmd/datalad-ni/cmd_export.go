package main

import (
	"github.com/spf13/cobra"

	"github.com/datalad/datalad-neuroimaging/internal/export/gindatacite"
	"github.com/datalad/datalad-neuroimaging/internal/export/scidata"
)

func (a *app) bids2scidataCmd() *cobra.Command {
	opts := scidata.Options{}
	var dsPath string
	cmd := &cobra.Command{
		Use:   "bids2scidata",
		Short: "Export BIDS dataset metadata as ISA-Tab tables",
		Long: `Writes the ISA-Tab investigation, study and assay tables describing a
BIDS dataset, as expected for a data descriptor submission.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			opts.Dataset = root
			opts.Logger = a.logger
			res, err := scidata.Export(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printResults(a.out, res)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&dsPath, "dataset", "d", "", "BIDS dataset (default: current)")
	f.StringVarP(&opts.Output, "output", "o", "", "Output directory (default: scidata_isatab_<commit>)")
	f.StringVar(&opts.RepoName, "repository-name", "", "Name of the data repository (required)")
	f.StringVar(&opts.RepoAccession, "repository-accession", "", "Accession ID of the dataset in the repository (required)")
	f.StringVar(&opts.RepoURL, "repository-url", "", "URL of the dataset in the repository (required)")
	return cmd
}

func (a *app) bids2gindataciteCmd() *cobra.Command {
	opts := gindatacite.Options{}
	var dsPath string
	cmd := &cobra.Command{
		Use:   "bids2gindatacite",
		Short: "Generate a GIN datacite.yml from BIDS dataset_description.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.datasetRoot(dsPath)
			if err != nil {
				return err
			}
			opts.Dataset = root
			opts.Logger = a.logger
			res, err := gindatacite.Export(opts)
			if err != nil {
				return err
			}
			return printResults(a.out, res)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&dsPath, "dataset", "d", "", "BIDS dataset (default: current)")
	f.StringVarP(&opts.Output, "output", "o", "", "Output file (default: datacite.yml in the dataset)")
	f.BoolVarP(&opts.Force, "force", "f", false, "Overwrite an existing file")
	return cmd
}
