package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Heman10x-NGU/threadlab/internal/lesson"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available lessons",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name := color.New(color.Bold)
		out := cmd.OutOrStdout()
		for _, l := range lesson.Builtin().All() {
			name.Fprintf(out, "%-20s", l.Name())
			fmt.Fprintf(out, " %s\n", l.Summary())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
