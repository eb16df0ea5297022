package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"whalefeed/internal/app"
)

var (
	backfillChain string
	backfillFrom  string
	backfillTo    string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest historical signals for a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" {
			return errors.New("--from is required")
		}

		from, err := time.Parse(time.RFC3339, backfillFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to := time.Now().UTC()
		if backfillTo != "" {
			to, err = time.Parse(time.RFC3339, backfillTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
		}

		return getApp().Backfill(cmd.Context(), app.BackfillOptions{
			Chain: backfillChain,
			From:  from,
			To:    to,
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillChain, "chain", "ethereum", "Chain to backfill")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End timestamp (RFC3339, exclusive; defaults to now)")
}
