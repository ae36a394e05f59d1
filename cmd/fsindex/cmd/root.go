// Package cmd provides the fsindex CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd creates the root fsindex command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fsindex",
		Short: "Local filesystem search engine",
		Long: `fsindex builds and queries a hybrid keyword + semantic index over
one or more directory trees.

Run 'fsindex index <path>' to build an index, 'fsindex watch <path>' to keep
it current, and 'fsindex search <query>' to query it.`,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults built in if omitted)")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newSearchCmd())

	return root
}
