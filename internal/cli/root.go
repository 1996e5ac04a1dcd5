// Package cli implements the command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loupe",
	Short: "Loupe - a dataset curation query engine",
	Long: `Loupe serves row selection, grouping, and schema exploration over
registered datasets, with signal enrichment, embedding indexes, and
trained concept models layered on top of the source columns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
