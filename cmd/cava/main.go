package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/derekpowell/cava-rep/adapters/fit"
	"github.com/derekpowell/cava-rep/adapters/ingest"
	"github.com/derekpowell/cava-rep/app"
	"github.com/derekpowell/cava-rep/domain/dataset"
	"github.com/derekpowell/cava-rep/domain/model"
	"github.com/derekpowell/cava-rep/internal/config"
	"github.com/derekpowell/cava-rep/internal/testkit"
	"github.com/derekpowell/cava-rep/ports"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cava",
		Short: "Re-analysis pipeline for the vaccination-attitudes study",
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(),
		newSynthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAnalyzeCmd() *cobra.Command {
	var file string
	var sheet string
	var seed int64
	var chains int
	var reverseCoded []string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fit the full model battery against a study data file",
		Long: `Read a study export (.csv or .xlsx), derive the analysis set, fit the
model battery, and print coefficient tables, rankings, and posterior
predictive checks.

Example: cava analyze --file data/study.csv --seed 2025`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if file != "" {
				cfg.Data.File = file
			}
			if sheet != "" {
				cfg.Data.Sheet = sheet
			}
			if cmd.Flags().Changed("seed") {
				cfg.Sampler.Seed = seed
			}
			if cmd.Flags().Changed("chains") {
				cfg.Sampler.Chains = chains
			}

			schema := ingest.DefaultSchema()
			schema.ReverseCoded = reverseCoded
			reader := ingest.NewDataReader(cfg.Data.File, cfg.Data.Sheet, schema)

			return runAnalysis(cmd, reader, cfg)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "study data file (.csv or .xlsx)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name for .xlsx files")
	cmd.Flags().Int64Var(&seed, "seed", 2025, "sampler seed")
	cmd.Flags().IntVar(&chains, "chains", 4, "posterior chains")
	cmd.Flags().StringSliceVar(&reverseCoded, "reverse-coded", nil, "item labels to reflect at ingestion")
	return cmd
}

func newSynthCmd() *cobra.Command {
	var n int
	var seed int64

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Run the battery against synthetic data with a known effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Sampler.Seed = seed
			}

			opts := testkit.NewOptions()
			opts.N = n
			opts.Seed = seed
			reader := staticReader{participants: testkit.Generate(opts)}

			return runAnalysis(cmd, reader, cfg)
		},
	}

	cmd.Flags().IntVar(&n, "n", 120, "synthetic cohort size")
	cmd.Flags().Int64Var(&seed, "seed", 42, "generator and sampler seed")
	return cmd
}

func runAnalysis(cmd *cobra.Command, reader ports.DataReader, cfg *config.Config) error {
	sampler := model.SamplerControls{
		Chains:       cfg.Sampler.Chains,
		Iterations:   cfg.Sampler.Iterations,
		Warmup:       cfg.Sampler.Warmup,
		TargetAccept: cfg.Sampler.TargetAccept,
		Seed:         cfg.Sampler.Seed,
	}

	service := app.NewAnalysisService(reader, &fit.Engine{}, sampler, cfg.Run.MaxConcurrentFits)
	report, err := service.Run(cmd.Context())
	if err != nil {
		return err
	}
	return report.Render(os.Stdout)
}

// staticReader serves an in-memory cohort through the reader port.
type staticReader struct {
	participants []dataset.Participant
}

func (r staticReader) Read() ([]dataset.Participant, error) {
	return r.participants, nil
}
