package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/config"
	"github.com/datalad/datalad-neuroimaging/internal/logging"
)

// version is set at build time via -ldflags
var version = "dev"

// app carries the state shared by all commands.
type app struct {
	configPath string
	verbose    bool
	quiet      bool
	logJSON    bool
	workers    int

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "datalad-ni",
		Short: "Neuroimaging metadata extraction and DICOM to BIDS study tooling",
		Long: `datalad-ni extracts metadata from neuroimaging datasets (DICOM, BIDS,
NIfTI-1, MINC, NIDM results, FSL FEAT), keeps it in a searchable store and
helps turning raw DICOM acquisitions into BIDS datasets through an
approvable study specification.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Configuration file (default: "+config.DefaultPath()+")")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Only log warnings and errors")
	flags.BoolVar(&a.logJSON, "log-json", false, "Log JSON lines instead of console output")
	flags.IntVar(&a.workers, "workers", 0, "Number of parallel workers (default: configured value, 0 = CPU cores)")

	root.AddCommand(
		a.extractCmd(),
		a.aggregateCmd(),
		a.searchCmd(),
		a.metadataCmd(),
		a.reportCmd(),
		a.createStudyCmd(),
		a.importDICOMsCmd(),
		a.dicom2specCmd(),
		a.reviewCmd(),
		a.heuristicCmd(),
		a.bids2scidataCmd(),
		a.bids2gindataciteCmd(),
		a.bidsappCmd(),
		a.runProcedureCmd(),
		a.mcpCmd(),
		a.synthDICOMsCmd(),
	)
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = a.workers
	}
	if a.logJSON {
		cfg.LogJSON = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Options{Verbose: a.verbose, Quiet: a.quiet, JSON: cfg.LogJSON})
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
