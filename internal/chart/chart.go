// Package chart renders cross-market price comparisons as PNG bar charts.
package chart

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Bar is one labelled price.
type Bar struct {
	Label string
	Value float64
}

var (
	backgroundColor = drawing.Color{R: 55, G: 55, B: 55, A: 255}
	textColor       = drawing.Color{R: 200, G: 200, B: 200, A: 255}
	barColor        = drawing.Color{R: 0, G: 122, B: 255, A: 255}
	gridColor       = drawing.Color{R: 100, G: 100, B: 100, A: 128}
)

const (
	barWidth   = 48
	barSpacing = 24
	minWidth   = 640
)

// Range returns a y-axis range around values that is never empty, so a
// single bar or equal prices still render.
func Range(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 1
	}
	min, max = values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	padding := (max - min) * 0.5
	if padding == 0 {
		padding = max * 0.01
	}
	if padding == 0 {
		padding = 1
	}
	min, max = min-padding, max+padding
	if min < 0 {
		min = 0
	}
	return min, max
}

// RenderBars draws bars in the given order. format renders y-axis labels.
func RenderBars(title string, bars []Bar, format func(float64) string) ([]byte, error) {
	if len(bars) == 0 {
		return nil, errors.New("no bars to render")
	}

	values := make([]float64, len(bars))
	chartBars := make([]chart.Value, len(bars))
	for i, b := range bars {
		values[i] = b.Value
		chartBars[i] = chart.Value{
			Label: b.Label,
			Value: b.Value,
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor},
		}
	}
	min, max := Range(values)

	width := len(bars)*(barWidth+barSpacing) + 200
	if width < minWidth {
		width = minWidth
	}

	graph := chart.BarChart{
		Title:      title,
		TitleStyle: chart.Style{FontColor: textColor, FontSize: 14},
		Width:      width,
		Height:     480,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16},
		},
		Canvas: chart.Style{FillColor: backgroundColor},
		XAxis:  chart.Style{FontColor: textColor, StrokeColor: textColor, FontSize: 9},
		YAxis: chart.YAxis{
			Style:          chart.Style{FontColor: textColor, StrokeColor: gridColor, FontSize: 10},
			Range:          &chart.ContinuousRange{Min: min, Max: max},
			ValueFormatter: func(v interface{}) string { return format(v.(float64)) },
		},
		Bars: chartBars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, errors.Wrap(err, "render bar chart")
	}
	return buf.Bytes(), nil
}
