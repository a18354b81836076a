package sink

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// PhaseStatus markers for the overview table.
const (
	statusOK      = "ok"
	statusFailed  = "failed"
	statusSkipped = "skipped"
)

// Phase is one row of the run overview.
type Phase struct {
	Name     string
	Count    int
	Duration time.Duration
	Skipped  bool
	Err      error
}

// Overview accumulates per-phase results for the final report.
type Overview struct {
	phases  []Phase
	started time.Time
}

// NewOverview starts an overview clocked from now.
func NewOverview() *Overview {
	return &Overview{started: time.Now()}
}

// StartPhase returns a closure that records the phase when called.
func (o *Overview) StartPhase(name string) func(count int, err error) {
	began := time.Now()

	return func(count int, err error) {
		o.phases = append(o.phases, Phase{
			Name:     name,
			Count:    count,
			Duration: time.Since(began),
			Err:      err,
		})
	}
}

// Skip records a phase that did not run.
func (o *Overview) Skip(name string) {
	o.phases = append(o.phases, Phase{Name: name, Skipped: true})
}

// Failed reports whether any recorded phase errored.
func (o *Overview) Failed() bool {
	for _, p := range o.phases {
		if p.Err != nil {
			return true
		}
	}

	return false
}

// Render writes the overview table.
func (o *Overview) Render(w io.Writer, noColor bool) {
	okMark := color.New(color.FgGreen).Sprint(statusOK)
	failMark := color.New(color.FgRed).Sprint(statusFailed)

	if noColor {
		okMark = statusOK
		failMark = statusFailed
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Phase", "Status", "Count", "Duration"})

	for _, p := range o.phases {
		status := okMark

		switch {
		case p.Skipped:
			status = statusSkipped
		case p.Err != nil:
			status = failMark
		}

		count := ""
		if !p.Skipped {
			count = humanize.Comma(int64(p.Count))
		}

		duration := ""
		if !p.Skipped {
			duration = p.Duration.Round(time.Millisecond).String()
		}

		t.AppendRow(table.Row{p.Name, status, count, duration})
	}

	t.AppendFooter(table.Row{"total", "", "", time.Since(o.started).Round(time.Millisecond).String()})
	t.Render()

	for _, p := range o.phases {
		if p.Err != nil {
			fmt.Fprintf(w, "%s: %v\n", p.Name, p.Err)
		}
	}
}
