package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"alertdash/internal/alerts"
	"alertdash/internal/notify"
	"alertdash/internal/scheduler"
)

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-evaluate alerts on a schedule",
		Long: `Reload alerts and market data on the refresh schedule and print the
active count after every pass. State transitions are logged.

Stops on interrupt.`,
		Example: `  alertdash watch
  alertdash watch --schedule "@every 10s" --scope table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)

			schedule, _ := cmd.Flags().GetString("schedule")
			if schedule == "" {
				schedule = app.Config.Snapshot.RefreshSchedule
			}
			scope := app.Scope
			if s, _ := cmd.Flags().GetString("scope"); s != "" {
				parsed, err := alerts.ParseScope(s)
				if err != nil {
					return err
				}
				scope = parsed
			}

			if err := app.Snapshot.Warm(cmd.Context()); err != nil {
				app.Logger.Warn().Err(err).Msg("Snapshot cache unavailable")
			}

			job := scheduler.NewRefreshJob(scheduler.RefreshConfig{
				Log:      app.Logger,
				Store:    app.Alerts,
				Provider: app.Snapshot,
				Memo:     app.Memo,
				Scope:    scope,
				Now:      app.Now,
				OnUpdate: func(rec alerts.Recomputation) {
					printUpdate(output, app, rec, scope)
				},
				Notifier: app.notifier(cmd, output),
			})

			sched := scheduler.New(app.Logger)
			if err := sched.AddJob(schedule, job); err != nil {
				return err
			}

			if err := sched.RunNow(job); err != nil {
				app.Logger.Warn().Err(err).Msg("Initial refresh incomplete")
			}

			sched.Start()
			<-cmd.Context().Done()
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().String("schedule", "", "cron schedule (default: snapshot.refresh_schedule)")
	cmd.Flags().String("scope", "", "count scope: badge or table")
	return cmd
}

// notifier builds the notification channels from the notify config; nil
// when none is enabled.
func (app *App) notifier(cmd *cobra.Command, output *Output) notify.Notifier {
	cfg := app.Config.Notify
	multi := notify.NewMulti()
	if cfg.Enabled && !output.IsJSON() {
		multi.AddChannel(notify.NewTerminal(cmd.OutOrStdout(), cfg.Bell, output.colorEnabled, app.Config.UI.TimeFormat))
	}
	multi.AddChannel(notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
	if multi.Len() == 0 {
		return nil
	}
	return multi
}

func printUpdate(output *Output, app *App, rec alerts.Recomputation, scope alerts.Scope) {
	counts := rec.CountByState()
	if output.IsJSON() {
		_ = output.JSON(map[string]interface{}{
			"at":     rec.At,
			"scope":  scope,
			"active": rec.Active(scope),
			"states": counts,
		})
		return
	}

	output.Printf("%s  active %s  %s %d  %s %d  %s %d  %s %d\n",
		rec.At.Local().Format(app.Config.UI.TimeFormat),
		output.ColoredString(ColorBold, strconv.Itoa(rec.Active(scope))),
		output.State(alerts.StateTriggered), counts[alerts.StateTriggered],
		output.State(alerts.StatePending), counts[alerts.StatePending],
		output.State(alerts.StateRead), counts[alerts.StateRead],
		output.State(alerts.StateSnoozed), counts[alerts.StateSnoozed],
	)
}
