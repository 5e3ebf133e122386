package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"alertdash/internal/alerts"
	apperrors "alertdash/internal/errors"
	"alertdash/internal/models"
)

func newAlertsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alerts",
		Aliases: []string{"alert", "a"},
		Short:   "List and manage alerts",
		Long: `List alerts with their live evaluation, and create, acknowledge,
snooze or delete them.

Alert IDs may be shortened to any unique prefix.`,
	}

	cmd.AddCommand(newAlertsListCmd(app))
	cmd.AddCommand(newAlertsBadgeCmd(app))
	cmd.AddCommand(newAlertsCreateCmd(app))
	cmd.AddCommand(newAlertMutationCmd(app, "read ID", "Mark an alert as read", "Marked %s as read",
		func(ctx context.Context, id string) error { return app.Alerts.MarkRead(ctx, id) }))
	cmd.AddCommand(newAlertMutationCmd(app, "unread ID", "Mark an alert as unread", "Marked %s as unread",
		func(ctx context.Context, id string) error { return app.Alerts.MarkUnread(ctx, id) }))
	cmd.AddCommand(newAlertsSnoozeCmd(app))
	cmd.AddCommand(newAlertMutationCmd(app, "unsnooze ID", "Clear an alert's snooze", "Unsnoozed %s",
		func(ctx context.Context, id string) error { return app.Alerts.Unsnooze(ctx, id) }))
	cmd.AddCommand(newAlertMutationCmd(app, "enable ID", "Enable an alert", "Enabled %s",
		func(ctx context.Context, id string) error { return app.Alerts.SetActive(ctx, id, true) }))
	cmd.AddCommand(newAlertMutationCmd(app, "disable ID", "Disable an alert", "Disabled %s",
		func(ctx context.Context, id string) error { return app.Alerts.SetActive(ctx, id, false) }))
	cmd.AddCommand(newAlertMutationCmd(app, "delete ID", "Delete an alert", "Deleted %s",
		func(ctx context.Context, id string) error { return app.Alerts.Delete(ctx, id) }))
	cmd.AddCommand(newAlertsClearCmd(app))

	return cmd
}

// listResult is the JSON shape of `alerts list`.
type listResult struct {
	Alerts      []alerts.View `json:"alerts"`
	BadgeActive int           `json:"badge_active"`
	TableActive int           `json:"table_active"`
}

func newAlertsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts with their current state",
		Example: `  alertdash alerts list
  alertdash alerts list --state triggered
  alertdash alerts list --ticker AAPL --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			tickerFilter, _ := cmd.Flags().GetString("ticker")
			stateFilter, _ := cmd.Flags().GetString("state")

			var wantState alerts.ViewState
			if stateFilter != "" {
				s, ok := alerts.ParseViewState(strings.ToLower(stateFilter))
				if !ok {
					return fmt.Errorf("unknown state %q (want triggered, pending, read or snoozed)", stateFilter)
				}
				wantState = s
			}

			rec, err := app.recompute(cmd.Context())
			if err != nil {
				return err
			}

			views := make([]alerts.View, 0, len(rec.Views))
			for _, v := range rec.Views {
				if tickerFilter != "" && !strings.EqualFold(v.Alert.Ticker, tickerFilter) {
					continue
				}
				if wantState != "" && v.State != wantState {
					continue
				}
				views = append(views, v)
			}

			if output.IsJSON() {
				return output.JSON(listResult{
					Alerts:      views,
					BadgeActive: rec.BadgeActive,
					TableActive: rec.TableActive,
				})
			}

			if len(views) == 0 {
				output.Info("No alerts")
				return nil
			}

			table := NewTable(output, "ID", "TICKER", "NAME", "TYPE", "THRESHOLD", "PRICE", "SMA50", "SMA200", "RESULT", "STATE", "NOTE")
			for _, v := range views {
				var name string
				var price, sma50, sma200 *float64
				if m := v.Metrics; m != nil {
					name = m.DisplayName
					price, sma50, sma200 = m.Price, m.SMA50, m.SMA200
				}
				table.AddRow(
					ShortID(v.Alert.ID),
					v.Alert.Ticker,
					TruncateString(name, 20),
					FormatAlertType(v.Alert.AlertType),
					FormatThreshold(v.Alert),
					FormatMetric(price),
					FormatMetric(sma50),
					FormatMetric(sma200),
					output.Result(v.Result),
					output.State(v.State),
					note(app, v),
				)
			}
			table.Render()

			output.Println()
			output.Printf("Active: %d (badge)  %d (table)\n", rec.BadgeActive, rec.TableActive)
			return nil
		},
	}

	cmd.Flags().String("ticker", "", "only show alerts for this ticker")
	cmd.Flags().String("state", "", "only show alerts in this state (triggered, pending, read, snoozed)")
	return cmd
}

// note describes the snooze or disabled status of a view.
func note(app *App, v alerts.View) string {
	switch {
	case v.State == alerts.StateSnoozed:
		return "snoozed " + FormatSnooze(v.Alert, app.Now())
	case !v.Alert.IsActive:
		return "disabled"
	case v.Alert.Message != nil:
		return TruncateString(*v.Alert.Message, 30)
	}
	return ""
}

func newAlertsBadgeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badge",
		Short: "Print the active alert count",
		Long: `Print the number of triggered alerts that are neither read nor snoozed.

The badge scope counts price rules only; the table scope counts every rule
type. The default comes from alerts.badge_scope in config.toml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			scope := app.Scope
			if s, _ := cmd.Flags().GetString("scope"); s != "" {
				parsed, err := alerts.ParseScope(s)
				if err != nil {
					return err
				}
				scope = parsed
			}

			rec, err := app.recompute(cmd.Context())
			if err != nil {
				return err
			}

			count := rec.Active(scope)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"scope":  scope,
					"active": count,
				})
			}
			output.Println(count)
			return nil
		},
	}

	cmd.Flags().String("scope", "", "count scope: badge or table")
	return cmd
}

func newAlertsCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create TICKER TYPE [THRESHOLD]",
		Short: "Create an alert",
		Long: fmt.Sprintf(`Create an alert on a ticker.

TYPE is one of:
  %s

Crossover types take no threshold.`, strings.Join(typeNames(), "\n  ")),
		Example: `  alertdash alerts create AAPL price_above 200
  alertdash alerts create MSFT sma50_below_sma200
  alertdash alerts create NVDA sma50_approaching_sma200 2.5 --message "watch the cross"`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			alertType, err := models.ParseAlertType(args[1])
			if err != nil {
				return err
			}

			in := models.CreateAlertInput{
				Ticker:    args[0],
				AlertType: alertType,
			}
			if len(args) == 3 {
				v, err := strconv.ParseFloat(args[2], 64)
				if err != nil {
					return fmt.Errorf("invalid threshold %q", args[2])
				}
				in.ThresholdValue = v
			} else if !alertType.IsCrossover() {
				return fmt.Errorf("%s requires a threshold", alertType)
			}
			if msg, _ := cmd.Flags().GetString("message"); msg != "" {
				in.Message = &msg
			}

			created, err := app.Alerts.Create(cmd.Context(), in)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(created)
			}
			output.Success("✓ Created %s alert %s on %s", FormatAlertType(created.AlertType), ShortID(created.ID), created.Ticker)
			return nil
		},
	}

	cmd.Flags().String("message", "", "note shown with the alert")
	return cmd
}

func newAlertsSnoozeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "snooze ID DURATION",
		Short: "Snooze an alert",
		Long: `Hide an alert until the duration elapses.

DURATION accepts Go durations plus a leading day count, e.g. 30m, 4h, 2d, 1d12h.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			d, err := ParseSnoozeDuration(args[1])
			if err != nil {
				return err
			}

			id, err := app.resolveID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			until := app.Now().Add(d).UTC()
			if err := app.Alerts.Snooze(cmd.Context(), id, until); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"id": id, "snoozed_until": until})
			}
			output.Success("✓ Snoozed %s until %s", ShortID(id), FormatTime(&until, app.Config.UI.TimeFormat))
			return nil
		},
	}
}

func newAlertsClearCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to delete all alerts without --yes")
			}

			if _, err := app.Alerts.Load(cmd.Context(), false); err != nil {
				return err
			}
			n := len(app.Alerts.Alerts())
			if err := app.Alerts.Clear(cmd.Context()); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{"deleted": n})
			}
			output.Success("✓ Deleted %d alerts", n)
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "confirm deleting every alert")
	return cmd
}

// newAlertMutationCmd builds a single-ID command around a store mutation.
func newAlertMutationCmd(app *App, use, short, done string, mutate func(ctx context.Context, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			id, err := app.resolveID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := mutate(cmd.Context(), id); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]string{"id": id, "status": "ok"})
			}
			output.Success("✓ "+done, ShortID(id))
			return nil
		},
	}
}

// recompute loads alerts and market data and evaluates them. Market data
// failures are logged; affected alerts stay pending.
func (app *App) recompute(ctx context.Context) (alerts.Recomputation, error) {
	if _, err := app.Alerts.Load(ctx, false); err != nil {
		return alerts.Recomputation{}, fmt.Errorf("could not reach the dashboard backend: %w", err)
	}

	if err := app.Snapshot.Warm(ctx); err != nil {
		app.Logger.Debug().Err(err).Msg("Snapshot cache unavailable")
	}
	if _, err := app.Snapshot.Load(ctx, false); err != nil {
		app.Logger.Warn().Err(err).Msg("Market data unavailable, price rules stay pending")
	}

	list, revision := app.Alerts.Snapshot()
	return app.Memo.Recompute(revision, list, app.Snapshot.Current(), app.Now()), nil
}

// resolveID expands a unique ID prefix against the loaded alert list.
func (app *App) resolveID(ctx context.Context, prefix string) (string, error) {
	if _, err := app.Alerts.Load(ctx, false); err != nil {
		return "", err
	}
	if _, ok := app.Alerts.Get(prefix); ok {
		return prefix, nil
	}

	var matches []string
	for _, a := range app.Alerts.Alerts() {
		if strings.HasPrefix(a.ID, prefix) {
			matches = append(matches, a.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", apperrors.Wrapf(apperrors.ErrAlertNotFound, "no alert matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("alert ID %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func typeNames() []string {
	names := make([]string, len(models.AlertTypes))
	for i, t := range models.AlertTypes {
		names[i] = string(t)
	}
	return names
}
