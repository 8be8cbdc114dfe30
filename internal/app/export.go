package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"skywatch/internal/storage"
	"skywatch/internal/tracking"
)

// seriesPoint is one history entry reduced to the module's headline number.
type seriesPoint struct {
	At     time.Time
	Source string
	Value  float64
	Label  string
}

// Export renders a user's tracked history for one module as CSV and/or PNG.
func (r *Runtime) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.UserID == "" {
		return errors.New("user id is required")
	}
	tracker, err := r.Registry.Get(opts.Module)
	if err != nil {
		return err
	}

	opts.MaxPoints = r.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-r.Config.Tracking.HistoryRetention)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	entries, err := r.Store.ListHistoryBetween(ctx, opts.UserID, tracker.Name(), from, to)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		r.Logger.Info().Str("user_id", opts.UserID).Str("module", tracker.Name()).Msg("no history found for export window")
		return nil
	}

	points := toSeries(tracker.Name(), entries)
	downsampled := downsample(points, opts.MaxPoints)
	r.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting history")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, tracker.Name(), downsampled); err != nil {
			return err
		}
	}
	return nil
}

// toSeries drops entries that cannot be decoded.
func toSeries(module string, entries []storage.HistoryEntry) []seriesPoint {
	out := make([]seriesPoint, 0, len(entries))
	for _, e := range entries {
		p, ok := seriesValue(module, e)
		if ok {
			out = append(out, p)
		}
	}
	return out
}

func seriesValue(module string, e storage.HistoryEntry) (seriesPoint, bool) {
	var snap tracking.Snapshot
	if err := json.Unmarshal(e.Data, &snap); err != nil {
		return seriesPoint{}, false
	}
	p := seriesPoint{At: e.Timestamp.UTC(), Source: snap.Source}

	switch module {
	case tracking.SolarModuleName:
		var d tracking.SolarData
		if snap.Decode(&d) != nil {
			return seriesPoint{}, false
		}
		p.Value, p.Label = d.KpIndex, d.StormLevel
	case tracking.LunarModuleName:
		var d tracking.LunarData
		if snap.Decode(&d) != nil {
			return seriesPoint{}, false
		}
		p.Value, p.Label = d.Illumination, d.PhaseName
	case tracking.TransitModuleName:
		var d tracking.TransitData
		if snap.Decode(&d) != nil {
			return seriesPoint{}, false
		}
		for _, pos := range d.Positions {
			if pos.Retrograde {
				p.Value++
			}
		}
		p.Label = fmt.Sprintf("%d bodies", len(d.Positions))
	default:
		return seriesPoint{}, false
	}
	return p, true
}

func seriesName(module string) string {
	switch module {
	case tracking.SolarModuleName:
		return "Kp index"
	case tracking.LunarModuleName:
		return "Illumination (fraction)"
	case tracking.TransitModuleName:
		return "Retrograde bodies"
	default:
		return module
	}
}

func downsample(points []seriesPoint, max int) []seriesPoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]seriesPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeSeriesCSV(path string, points []seriesPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"recorded_at", "source", "value", "label"}); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.At.Format(time.RFC3339),
			p.Source,
			strconv.FormatFloat(p.Value, 'f', 3, 64),
			p.Label,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path, module string, points []seriesPoint) error {
	if len(points) < 2 {
		return errors.New("at least two points are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		y[i] = p.Value
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           seriesName(module),
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    seriesName(module),
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
