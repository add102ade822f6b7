// Package visual renders session charts as standalone echarts HTML pages.
package visual

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"getrader/internal/tracker"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEquity        = "#3b82f6"
	colorDrawdown      = "#fbbf24"

	chartWidthPx   = 1200
	equityHeightPx = 420
	profitHeightPx = 260
)

// EquityInput 是权益曲线页面的数据源。
type EquityInput struct {
	Title    string
	Outcomes []tracker.TradeOutcome
}

// RenderEquity writes a page with the cumulative profit curve, its
// drawdown from peak and a bar per settled trade.
func RenderEquity(w io.Writer, in EquityInput) error {
	if len(in.Outcomes) == 0 {
		return fmt.Errorf("no settled trades to chart")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Equity"
	}
	xAxis := buildXAxis(in.Outcomes)
	equity, drawdown := equitySeries(in.Outcomes)

	page := components.NewPage()
	page.PageTitle = title
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		buildEquityChart(title, xAxis, equity, drawdown),
		buildProfitChart(xAxis, in.Outcomes),
	)
	return page.Render(w)
}

// RenderEquityHTML is RenderEquity into a byte slice.
func RenderEquityHTML(in EquityInput) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderEquity(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildXAxis(outcomes []tracker.TradeOutcome) []string {
	x := make([]string, len(outcomes))
	for i, o := range outcomes {
		x[i] = o.CompletedAt.UTC().Format("01-02 15:04:05")
	}
	return x
}

// equitySeries returns the cumulative net profit and the drawdown below its
// running peak after each trade.
func equitySeries(outcomes []tracker.TradeOutcome) (equity, drawdown []float64) {
	equity = make([]float64, len(outcomes))
	drawdown = make([]float64, len(outcomes))
	cum, peak := 0.0, 0.0
	for i, o := range outcomes {
		cum += o.Profit
		peak = math.Max(peak, cum)
		equity[i] = round(cum, 2)
		drawdown[i] = round(cum-peak, 2)
	}
	return equity, drawdown
}

func buildEquityChart(title string, xAxis []string, equity, drawdown []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      fmt.Sprintf("trades %d | net %.0f gp", len(equity), equity[len(equity)-1]),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", toLineData(equity), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	line.AddSeries("Drawdown", toLineData(drawdown), charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 1}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

func buildProfitChart(xAxis []string, outcomes []tracker.TradeOutcome) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", profitHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Per-trade profit", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	data := make([]opts.BarData, len(outcomes))
	for i, o := range outcomes {
		color := colorBear
		if o.Profit >= 0 {
			color = colorBull
		}
		data[i] = opts.BarData{
			Name:      fmt.Sprintf("%s %s", o.Action.Type, o.ItemID),
			Value:     round(o.Profit, 2),
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.7)},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Profit", data)
	return bar
}

func toLineData(series []float64) []opts.LineData {
	out := make([]opts.LineData, len(series))
	for i, v := range series {
		out[i] = opts.LineData{Value: v}
	}
	return out
}

func round(val float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(val*p) / p
}
