package cli

import (
	"github.com/spf13/cobra"

	"alertdash/internal/snapshot"
)

func newSnapshotCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect market data",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the merged holdings and watchlist metrics",
		Long: `Show the per-ticker metrics alerts are evaluated against.

Holdings are merged first and watchlist entries on top, field by field.
With --cached only the snapshot stored in Redis is shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			cachedOnly, _ := cmd.Flags().GetBool("cached")

			if err := app.Snapshot.Warm(cmd.Context()); err != nil {
				app.Logger.Warn().Err(err).Msg("Snapshot cache unavailable")
			}

			var snap *snapshot.Snapshot
			if cachedOnly {
				snap = app.Snapshot.Current()
			} else {
				s, err := app.Snapshot.Load(cmd.Context(), false)
				if err != nil {
					if s.Len() == 0 {
						return err
					}
					output.Warning("Showing stale data: %v", err)
				}
				snap = s
			}

			if output.IsJSON() {
				return output.JSON(snap)
			}

			if snap.Len() == 0 {
				output.Info("No market data")
				return nil
			}

			table := NewTable(output, "TICKER", "NAME", "PRICE", "SMA50", "SMA200", "SMA GAP")
			for _, ticker := range snap.Tickers() {
				m := snap.Lookup(ticker)
				table.AddRow(
					ticker,
					TruncateString(m.DisplayName, 24),
					FormatMetric(m.Price),
					FormatMetric(m.SMA50),
					FormatMetric(m.SMA200),
					FormatGap(m.SMA50, m.SMA200),
				)
			}
			table.Render()

			output.Println()
			output.Dim("%d tickers, fetched %s", snap.Len(), FormatTime(&snap.FetchedAt, app.Config.UI.TimeFormat))
			return nil
		},
	}
	show.Flags().Bool("cached", false, "show the cached snapshot without fetching")

	cmd.AddCommand(show)
	return cmd
}
