package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/exceptrace/internal/config"
	"github.com/Sumatoshi-tech/exceptrace/internal/persist"
	"github.com/Sumatoshi-tech/exceptrace/internal/profile"
	"github.com/Sumatoshi-tech/exceptrace/internal/sink"
)

// profileReportName is the JSON profile report file.
const profileReportName = "profile.json"

// ProfileCommand holds the flags for the profile command.
type ProfileCommand struct {
	outputDir string
	plot      bool
	jsonOut   bool
}

// NewProfileCommand creates and configures the profile command.
func NewProfileCommand() *cobra.Command {
	pc := &ProfileCommand{}

	cobraCmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile catch effectiveness per context level",
		Long: "Profile reads the graph snapshot produced by run and computes, for " +
			"each context level, the ratio of exceptions thrown to exceptions " +
			"caught across grouped call sites.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return pc.Run()
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVarP(&pc.outputDir, "output-dir", "o", config.DefaultOutputDir, "Directory holding the graph snapshot")
	flags.BoolVar(&pc.plot, "plot", false, "Write an HTML chart of catch rates")
	flags.BoolVar(&pc.jsonOut, "json", false, "Print the report as JSON instead of a table")

	return cobraCmd
}

// Run executes the profile command.
func (pc *ProfileCommand) Run() error {
	g, _, err := sink.ReadSnapshot(pc.outputDir)
	if err != nil {
		return fmt.Errorf("load graph snapshot (did run complete?): %w", err)
	}

	profiler := profile.New(g)
	results := profiler.Profile()

	reportPath := filepath.Join(pc.outputDir, profileReportName)
	if err := persist.Save(reportPath, persist.NewJSONCodec(), results); err != nil {
		return err
	}

	if pc.plot {
		if err := sink.WriteRateChart(pc.outputDir, results); err != nil {
			return err
		}
	}

	if pc.jsonOut {
		return persist.NewJSONCodec().Encode(os.Stdout, results)
	}

	renderResults(os.Stdout, profiler.UniverseSize(), results)

	return nil
}

func renderResults(w *os.File, universe int, results []profile.Result) {
	fmt.Fprintf(w, "%d call sites in profiling universe\n", universe)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Context", "Legacy", "Thrown", "Caught", "Rate"})

	for _, r := range results {
		t.AppendRow(table.Row{r.Context, r.Legacy, r.Thrown, r.Caught, r.RateString()})
	}

	t.Render()
}
