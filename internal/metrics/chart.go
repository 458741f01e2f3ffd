package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteChart renders every series of the log as a line chart on one HTML
// page. Each metric gets its own chart because the scales differ wildly
// (losses vs. episode returns).
func WriteChart(log *Log, path string) error {
	page := components.NewPage()

	for _, name := range log.Names() {
		points := log.Series(name)
		if len(points) == 0 {
			continue
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title: name,
			}),
			charts.WithInitializationOpts(opts.Initialization{
				Theme: "shine",
			}),
		)

		steps := make([]string, 0, len(points))
		items := make([]opts.LineData, 0, len(points))
		for _, p := range points {
			steps = append(steps, fmt.Sprintf("%d", p.Step))
			items = append(items, opts.LineData{Value: p.Value})
		}
		line.SetXAxis(steps).AddSeries(name, items)
		page.AddCharts(line)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create chart dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
