package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent audit records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show trades")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListRecentTrades(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no trades found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSource\tMarket\tSide\tStake\tLimit\tStatus\tDetail")

	for _, record := range records {
		limit := ""
		if record.LimitPrice != nil {
			limit = formatDecimal(*record.LimitPrice, 3)
		}
		detail := ""
		if record.Detail != nil {
			detail = sanitizeInline(*record.Detail)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s %s\t%s\t%s\t%s\t%s\n",
			record.CreatedAt.UTC().Format(time.RFC3339),
			shorten(record.SourceAddress),
			shorten(record.Market),
			record.Action,
			record.Outcome,
			formatDecimal(record.AdjustedStake, 4),
			limit,
			record.Status,
			detail,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func shorten(v string) string {
	if len(v) <= 12 {
		return v
	}
	return v[:6] + ".." + v[len(v)-4:]
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
