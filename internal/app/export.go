package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"whalefeed/internal/signal"
)

// Export renders historical signal data as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-a.Config.Ingest.BackfillWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	signals, err := store.ListSignalsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		a.Logger.Info().Msg("no signals found for export window")
		return nil
	}

	downsampled := downsampleSignals(signals, opts.MaxPoints)
	a.Logger.Info().Int("total", len(signals)).Int("exported", len(downsampled)).Msg("exporting signals")

	if opts.CSVPath != "" {
		if err := writeSignalsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSignalsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSignals(signals []signal.Signal, max int) []signal.Signal {
	if max <= 0 || len(signals) <= max {
		return signals
	}

	result := make([]signal.Signal, 0, max)
	step := float64(len(signals)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(signals) {
			idx = len(signals) - 1
		}
		result = append(result, signals[idx])
	}
	return result
}

func writeSignalsCSV(path string, signals []signal.Signal) error {
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

	header := []string{"observed_at", "chain", "asset", "direction", "amount_usd", "source", "impact_score", "tx_hash"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sig := range signals {
		record := []string{
			sig.Timestamp.UTC().Format(time.RFC3339),
			sig.Chain,
			sig.Asset,
			string(sig.Direction),
			sig.AmountUSD.String(),
			sig.Source,
			formatFloat(signal.ImpactScore(sig)),
			sig.TxHash,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSignalsPNG(path string, signals []signal.Signal) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(signals))
	amounts := make([]float64, len(signals))
	impacts := make([]float64, len(signals))

	for i, sig := range signals {
		x[i] = sig.Timestamp
		amounts[i] = sig.AmountUSD.InexactFloat64()
		impacts[i] = signal.ImpactScore(sig)
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Amount (USD)",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Impact score",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Amount USD",
				XValues: x,
				YValues: amounts,
			},
			chart.TimeSeries{
				Name:    "Impact",
				XValues: x,
				YValues: impacts,
				YAxis:   chart.YAxisSecondary,
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
