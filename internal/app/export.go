package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"monaco-mirror/internal/storage"
)

// Export renders the audit history as CSV and/or PNG.
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
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListTradesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no trades found for export window")
		return nil
	}

	downsampled := downsampleTrades(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting trades")

	if opts.CSVPath != "" {
		if err := writeTradesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTradesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleTrades(records []storage.TradeRecord, max int) []storage.TradeRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.TradeRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeTradesCSV(path string, records []storage.TradeRecord) error {
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

	header := []string{"created_at", "source_address", "source_signature", "market", "outcome", "action", "source_stake", "adjusted_stake", "source_price", "limit_price", "status", "detail", "replicated_signature"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		sourcePrice, limitPrice, detail, replicated := "", "", "", ""
		if record.SourcePrice != nil {
			sourcePrice = record.SourcePrice.String()
		}
		if record.LimitPrice != nil {
			limitPrice = record.LimitPrice.String()
		}
		if record.Detail != nil {
			detail = *record.Detail
		}
		if record.ReplicatedSignature != nil {
			replicated = *record.ReplicatedSignature
		}
		row := []string{
			record.CreatedAt.Format(time.RFC3339),
			record.SourceAddress,
			record.SourceSignature,
			record.Market,
			record.Outcome,
			record.Action,
			record.SourceStake.String(),
			record.AdjustedStake.String(),
			sourcePrice,
			limitPrice,
			record.Status,
			detail,
			replicated,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeTradesPNG(path string, records []storage.TradeRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	stakes := make([]float64, len(records))
	realizedLoss := make([]float64, len(records))

	cumulative := decimal.Zero
	for i, record := range records {
		x[i] = record.CreatedAt
		stakes[i] = record.AdjustedStake.InexactFloat64()
		if record.Status == storage.StatusFailed {
			cumulative = cumulative.Add(record.AdjustedStake)
		}
		realizedLoss[i] = cumulative.InexactFloat64()
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Adjusted stake",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Cumulative failed stake",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Stake",
				XValues: x,
				YValues: stakes,
			},
			chart.TimeSeries{
				Name:    "Failed stake (cum)",
				XValues: x,
				YValues: realizedLoss,
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
