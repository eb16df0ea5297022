package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"whalefeed/internal/signal"
)

// Show prints the most recent signals.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show signals")
	}
	defer closeStore()

	signals, err := store.ListRecentSignals(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		fmt.Fprintln(os.Stdout, "no signals found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChain\tAsset\tDirection\tAmount USD\tImpact\tSource\tTx")

	for _, sig := range signals {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sig.Timestamp.UTC().Format(time.RFC3339),
			sig.Chain,
			sig.Asset,
			sig.Direction,
			sig.AmountUSD.StringFixed(2),
			formatFloat(signal.ImpactScore(sig)),
			sig.Source,
			sig.TxHash,
		)
	}

	writer.Flush()
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
