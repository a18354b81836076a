package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/exceptrace/internal/profile"
)

// ChartName is the catch-rate plot file.
const ChartName = "contexts.html"

const (
	chartWidth  = "1100px"
	chartHeight = "500px"
)

// WriteRateChart renders the per-context catch rates as an HTML bar chart.
func WriteRateChart(dir string, results []profile.Result) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Catch rate by context level",
			Subtitle: "caught / thrown across grouped call sites",
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "rate"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "context"}),
	)

	labels := make([]string, 0, len(results))
	rates := make([]opts.BarData, 0, len(results))

	for _, r := range results {
		labels = append(labels, fmt.Sprintf("%d", r.Context))
		rates = append(rates, opts.BarData{Value: r.Rate})
	}

	bar.SetXAxis(labels)
	bar.AddSeries("catch rate", rates)

	f, err := os.Create(filepath.Join(dir, ChartName))
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()

	if err := bar.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	return nil
}
