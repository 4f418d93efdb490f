package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Heman10x-NGU/threadlab/internal/detector"
	"github.com/Heman10x-NGU/threadlab/internal/reporter"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <trace.out>",
	Short: "Analyze an existing Go execution trace file",
	Example: `  threadlab analyze ./trace.out
  threadlab analyze ./trace.out --format json --output findings.json
  threadlab analyze ./trace.out --min-block 200ms`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	result, err := detector.Analyze(args[0], detector.Options{MinBlock: cfg.Trace.MinBlock.D()})
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	logger.Debug("trace analyzed",
		zap.String("file", args[0]),
		zap.Int("goroutines", result.GoroutinesAnalyzed),
		zap.Int("findings", len(result.Findings)))

	return writeReport(cmd, reporter.Report{Trace: result})
}
