// Package commands provides CLI command implementations for exceptrace.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/exceptrace/pkg/version"
)

// NewRootCommand creates the exceptrace root command with all subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "exceptrace",
		Short: "Whole-program exception propagation analysis for C++",
		Long: "exceptrace builds an inter-procedural call graph from clang extractor " +
			"fragments, propagates exception types across callers while honoring " +
			"catch handlers, and profiles how effectively handlers catch what their " +
			"callees throw.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		NewRunCommand(),
		NewProfileCommand(),
		NewFixesCommand(),
	)

	return root
}
