package performance

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/jktan/assetfolio/internal/models"
)

// RenderComparisonChart renders a PNG line chart of portfolio value against
// the behaviour-matched benchmark, with the cumulative invested amount as a
// dashed reference line. Series must share the same date grid where they
// overlap. Returns raw PNG bytes.
func RenderComparisonChart(value, benchmark, invested []models.SeriesPoint, benchmarkLabel, baseCurrency string) ([]byte, error) {
	if len(value) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(value))
	}

	valueSeries := chart.TimeSeries{
		Name: "Portfolio Value",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
			StrokeWidth: 2.5,
		},
	}
	valueSeries.XValues, valueSeries.YValues = toXY(value)

	series := []chart.Series{valueSeries}

	if len(benchmark) >= 2 {
		benchSeries := chart.TimeSeries{
			Name: benchmarkLabel,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("f59e0b"), // amber-500
				StrokeWidth: 2.0,
			},
		}
		benchSeries.XValues, benchSeries.YValues = toXY(benchmark)
		series = append(series, benchSeries)
	}

	if len(invested) >= 2 {
		investedSeries := chart.TimeSeries{
			Name: "Invested",
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
		}
		investedSeries.XValues, investedSeries.YValues = toXY(invested)
		series = append(series, investedSeries)
	}

	graph := chart.Chart{
		Title:  "Portfolio vs Benchmark",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%s %.0fk", baseCurrency, f/1000)
				}
				return ""
			},
		},
		Series: series,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

// toXY splits a series into go-chart axis slices, dropping unparseable dates.
func toXY(points []models.SeriesPoint) ([]time.Time, []float64) {
	xs := make([]time.Time, 0, len(points))
	ys := make([]float64, 0, len(points))
	for _, p := range points {
		t, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		xs = append(xs, t)
		ys = append(ys, p.Value)
	}
	return xs, ys
}
