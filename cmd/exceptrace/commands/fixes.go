package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/exceptrace/internal/profile"
)

// FixesCommand holds the flags for the fixes command.
type FixesCommand struct {
	jsonOut bool
}

// NewFixesCommand creates and configures the fixes command.
func NewFixesCommand() *cobra.Command {
	fc := &FixesCommand{}

	cobraCmd := &cobra.Command{
		Use:   "fixes <reviewed-fixes.json>",
		Short: "Summarize reviewed exception-handling fixes per context level",
		Long: "Fixes reads a reviewed-fixes corpus, remaps its legacy context " +
			"numbers to the compact encoding, expands each fix through the " +
			"context refinement relation, and reports per-context counts.",
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return fc.Run(args[0])
		},
	}

	cobraCmd.Flags().BoolVar(&fc.jsonOut, "json", false, "Print the summary as JSON")

	return cobraCmd
}

// Run executes the fixes command.
func (fc *FixesCommand) Run(path string) error {
	fixes, err := profile.LoadFixes(path)
	if err != nil {
		return err
	}

	stats := profile.CountFixes(fixes)

	if fc.jsonOut {
		return printJSON(os.Stdout, stats)
	}

	fmt.Printf("%d reviewed fixes\n", stats.Fixes)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Context", "Fixes", "Noexcept callers"})

	for context := 1; context <= profile.ContextLevels; context++ {
		count := stats.PerContext[context]
		t.AppendRow(table.Row{context, count.Total, count.Noexcept})
	}

	t.Render()

	return nil
}
