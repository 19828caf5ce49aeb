// Package render draws spot history trend charts
package render

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/iranianx/rate/storage/types"
)

// ErrNotEnoughPoints means the history is too short to draw a line
var ErrNotEnoughPoints = errors.New("not enough history points")

// maxPoints bounds the series length so long histories stay readable
const maxPoints = 288

// Chart renders the spot history of one code as a PNG line chart.
// Points are accepted in any order and plotted oldest first.
func Chart(code string, points []*types.SpotPoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: %s has %d", ErrNotEnoughPoints, code, len(points))
	}

	ordered := make([]*types.SpotPoint, len(points))
	copy(ordered, points)

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Time.Before(ordered[j].Time)
	})

	ordered = downsample(ordered, maxPoints)

	var (
		x = make([]time.Time, len(ordered))
		y = make([]float64, len(ordered))
	)

	for i, point := range ordered {
		x[i] = point.Time
		y[i] = float64(point.Value)
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: fmt.Sprintf("%s (Toman)", code),
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    code,
				XValues: x,
				YValues: y,
			},
		},
	}

	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer

	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("unable to render chart: %w", err)
	}

	return buf.Bytes(), nil
}

// downsample picks evenly spaced points when the history exceeds the cap
func downsample(points []*types.SpotPoint, limit int) []*types.SpotPoint {
	if limit <= 0 || len(points) <= limit {
		return points
	}

	out := make([]*types.SpotPoint, 0, limit)
	step := float64(len(points)-1) / float64(limit-1)

	for i := 0; i < limit; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}

		out = append(out, points[idx])
	}

	return out
}
