package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Heman10x-NGU/threadlab/internal/lockcheck"
	"github.com/Heman10x-NGU/threadlab/internal/reporter"
)

var lockcheckCmd = &cobra.Command{
	Use:   "lockcheck [packages...]",
	Short: "Find functions that can return while holding a mutex",
	Long: `lockcheck builds SSA for the given packages (tests included) and reports
every Lock or RLock from which some return path never reaches the matching
Unlock or RUnlock. A deferred unlock covers every path.`,
	Example: `  threadlab lockcheck
  threadlab lockcheck ./internal/...`,
	RunE: runLockcheck,
}

func init() {
	rootCmd.AddCommand(lockcheckCmd)
}

func runLockcheck(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{"./..."}
	}
	logger.Debug("checking lock release", zap.Strings("patterns", args))

	findings, err := lockcheck.Check(args...)
	if err != nil {
		return fmt.Errorf("lockcheck: %w", err)
	}
	if err := writeReport(cmd, reporter.Report{Locks: findings, LockcheckRan: true}); err != nil {
		return err
	}
	if len(findings) > 0 {
		return fmt.Errorf("lockcheck: %d unreleased lock(s)", len(findings))
	}
	return nil
}
