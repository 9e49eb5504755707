package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"mineral-classifier/internal/stats"
	"mineral-classifier/pkg/colorutil"
)

// CSVHeader is the header row of the statistics CSV.
var CSVHeader = []string{"Mineral", "Percentage", "Lower_CI", "Upper_CI", "Pixel_Count"}

// WriteCSV writes one row per statistic.
func WriteCSV(w io.Writer, rows []stats.ClassStatistic) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, s := range rows {
		rec := []string{
			s.Name,
			strconv.FormatFloat(s.Percentage, 'f', -1, 64),
			strconv.FormatFloat(s.CILower, 'f', -1, 64),
			strconv.FormatFloat(s.CIUpper, 'f', -1, 64),
			strconv.Itoa(s.PixelCount),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// statColor returns the overlay color of the i-th statistic.
func statColor(i int, s stats.ClassStatistic, k int) string {
	switch {
	case s.Name == stats.CarbonName && i >= k:
		return colorutil.Hex(colorutil.ClassColor(k, k))
	case s.Name == stats.OtherName && i >= k:
		return colorutil.Hex(colorutil.ClassColor(k+1, k))
	default:
		return colorutil.Hex(colorutil.ClassColor(i, k))
	}
}

// WriteChart renders the composition as a pie chart page.
func WriteChart(w io.Writer, rows []stats.ClassStatistic, k int, title string) error {
	items := make([]opts.PieData, 0, len(rows))
	for i, s := range rows {
		if s.PixelCount == 0 {
			continue
		}
		items = append(items, opts.PieData{
			Name:      s.Name,
			Value:     s.Percentage,
			ItemStyle: &opts.ItemStyle{Color: statColor(i, s, k)},
		})
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Mineral Composition", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Mineral Composition", Subtitle: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}: {c}%"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Orient: "vertical", Left: "left", Top: "middle"}),
	)
	pie.AddSeries("composition", items,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {d}%"}),
		charts.WithPieChartOpts(opts.PieChart{Radius: []string{"35%", "70%"}}),
	)
	if err := pie.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
