package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Heman10x-NGU/threadlab/internal/config"
	"github.com/Heman10x-NGU/threadlab/internal/logging"
	"github.com/Heman10x-NGU/threadlab/internal/reporter"
)

var (
	flagConfig   string
	flagFormat   string
	flagOutput   string
	flagMinBlock string
	flagSeed     uint64
	flagVerbose  bool
	flagLogJSON  bool
)

// Set up by PersistentPreRunE for every subcommand.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "threadlab",
	Short: "Run classic thread-programming lessons on goroutines and inspect how they behave",
	Long: `threadlab runs small concurrency lessons (producer/consumer hand-off,
torn bank records, lock-order deadlocks, task-local storage, interrupts)
and reports what each run observed. With --trace a run is recorded and the
execution trace is checked for leaked, deadlocked and long-blocked goroutines.

Run 'threadlab list' to see the lessons.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file")
	pf.StringVar(&flagFormat, "format", "terminal", "Output format: terminal or json")
	pf.StringVar(&flagOutput, "output", "", "Write the report to file instead of stdout")
	pf.StringVar(&flagMinBlock, "min-block", "", "Minimum block duration to flag as a long block (e.g. 500ms, 2s)")
	pf.Uint64Var(&flagSeed, "seed", 0, "Seed for lesson delays (overrides config)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	pf.BoolVar(&flagLogJSON, "log-json", false, "Log as JSON")
}

// setup loads the config, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	if flagFormat != "terminal" && flagFormat != "json" {
		return fmt.Errorf("--format: unknown format %q", flagFormat)
	}

	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	pf := cmd.Flags()
	if pf.Changed("seed") {
		c.Seed = flagSeed
	}
	if pf.Changed("verbose") {
		c.Logging.Verbose = flagVerbose
	}
	if pf.Changed("log-json") {
		c.Logging.JSON = flagLogJSON
	}
	if flagMinBlock != "" {
		d, err := time.ParseDuration(flagMinBlock)
		if err != nil {
			return fmt.Errorf("--min-block: %w", err)
		}
		c.Trace.MinBlock = config.Duration(d)
	}

	l, err := logging.New(c.Logging.Verbose, c.Logging.JSON)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	logger.Debug("config loaded", zap.String("file", flagConfig), zap.Uint64("seed", cfg.Seed))
	return nil
}

// writeReport renders r in the selected format to --output or the command's
// stdout.
func writeReport(cmd *cobra.Command, r reporter.Report) error {
	out, cleanup, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if flagFormat == "json" {
		return reporter.WriteJSON(out, r)
	}
	reporter.WriteTerminal(out, r)
	return nil
}

func outputWriter(cmd *cobra.Command) (io.Writer, func(), error) {
	if flagOutput == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(flagOutput)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
