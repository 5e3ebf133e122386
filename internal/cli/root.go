// Package cli provides the command-line interface for the alert dashboard.
package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"alertdash/internal/alerts"
	"alertdash/internal/client"
	"alertdash/internal/config"
	"alertdash/internal/logging"
	"alertdash/internal/resilience"
	"alertdash/internal/snapshot"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Client   *client.Client
	Alerts   *alerts.Store
	Snapshot *snapshot.Provider
	Engine   *alerts.Engine
	Memo     *alerts.Memo
	Cache    *snapshot.RedisCache
	Scope    alerts.Scope

	// Now is the evaluation clock; nil means time.Now.
	Now func() time.Time

	// Backend and Sources replace the HTTP client when set.
	Backend alerts.Backend
	Sources snapshot.Sources
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	return newRootCmd(&App{Logger: logger})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alertdash",
		Short: "Stock alert dashboard",
		Long: `alertdash evaluates price and moving-average alerts against the
holdings and watchlist of a dashboard backend.

It shows which alerts are triggered, pending, read or snoozed, keeps the
unread badge count, and can run the reference backend locally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(logConfig(cfg.Logging))
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}

			return app.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.Cache != nil {
				_ = app.Cache.Close()
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/alertdash)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAlertsCmd(app))
	rootCmd.AddCommand(newSnapshotCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

// setup wires the client, orchestrator and snapshot provider from config.
func (app *App) setup() error {
	cfg := app.Config

	scope, err := alerts.ParseScope(cfg.Alerts.BadgeScope)
	if err != nil {
		return err
	}
	app.Scope = scope

	policy, err := alerts.ParseMutationPolicy(cfg.Alerts.MutationPolicy)
	if err != nil {
		return err
	}

	if app.Backend == nil || app.Sources == nil {
		opts := []client.Option{
			client.WithTimeout(cfg.API.Timeout),
			client.WithRetryAttempts(cfg.API.RetryAttempts),
			client.WithLogger(app.Logger),
		}
		if cfg.API.BreakerThreshold > 0 {
			opts = append(opts, client.WithBreaker(app.newBreaker()))
		}
		c, err := client.New(cfg.API.BaseURL, opts...)
		if err != nil {
			return err
		}
		app.Client = c
		if app.Backend == nil {
			app.Backend = c
		}
		if app.Sources == nil {
			app.Sources = c
		}
	}

	app.Alerts = alerts.NewStore(app.Backend, policy, app.Logger)
	app.Snapshot = snapshot.NewProvider(app.Sources, app.Logger)
	app.Engine = alerts.NewEngine()
	app.Memo = alerts.NewMemo(app.Engine)

	if cfg.Snapshot.CacheEnabled && app.Cache == nil {
		app.Cache = snapshot.NewRedisCache(snapshot.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Snapshot.CacheKey,
			TTL:      cfg.Snapshot.CacheTTL,
		})
	}
	if app.Cache != nil {
		app.Snapshot.SetCache(app.Cache)
	}

	if app.Now == nil {
		app.Now = time.Now
	}

	app.Logger.Debug().
		Str("api", cfg.API.BaseURL).
		Str("policy", string(app.Alerts.Policy())).
		Str("scope", string(scope)).
		Bool("cache", app.Cache != nil).
		Msg("Application initialized")
	return nil
}

func (app *App) newBreaker() *resilience.Breaker {
	logger := app.Logger
	return resilience.New("backend", resilience.Config{
		FailureThreshold: app.Config.API.BreakerThreshold,
		SuccessThreshold: 1,
		Cooldown:         app.Config.API.BreakerCooldown,
		IsFailure:        client.IsTransient,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", string(from)).
				Str("to", string(to)).
				Msg("Circuit breaker state changed")
		},
	})
}

// output returns an Output honoring the ui.color_enabled setting.
func (app *App) output(cmd *cobra.Command) *Output {
	out := NewOutput(cmd)
	if app.Config != nil && !app.Config.UI.ColorEnabled {
		out.DisableColor()
	}
	return out
}

func logConfig(cfg config.LoggingConfig) logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = cfg.Level
	lc.Console = cfg.Console
	lc.File = cfg.File
	if cfg.FilePath != "" {
		lc.FilePath = cfg.FilePath
	}
	if cfg.MaxSize > 0 {
		lc.MaxSize = cfg.MaxSize
	}
	if cfg.MaxBackups > 0 {
		lc.MaxBackups = cfg.MaxBackups
	}
	if cfg.MaxAge > 0 {
		lc.MaxAge = cfg.MaxAge
	}
	return lc
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("alertdash v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			cfg := app.Config.Redacted()
			if output.IsJSON() {
				return output.JSON(cfg)
			}
			showConfig(output, cfg)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Dir})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long:  "Validate configuration. With --ping the backend health check is also called.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}

			ping, _ := cmd.Flags().GetBool("ping")
			reachable := false
			if ping && app.Client != nil {
				if err := app.Client.Health(cmd.Context()); err != nil {
					output.Error("Backend %s is not reachable: %v", app.Config.API.BaseURL, err)
					return err
				}
				reachable = true
			}

			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true, "reachable": reachable})
			}
			output.Success("✓ Configuration is valid")
			if reachable {
				output.Success("✓ Backend is reachable")
			}
			return nil
		},
	}
	validate.Flags().Bool("ping", false, "also check that the backend is reachable")
	cmd.AddCommand(validate)

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("API")
	output.Printf("  Base URL:        %s\n", cfg.API.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.API.Timeout)
	output.Printf("  Retry Attempts:  %d\n", cfg.API.RetryAttempts)
	if cfg.API.BreakerThreshold > 0 {
		output.Printf("  Breaker:         %d failures, %s cooldown\n", cfg.API.BreakerThreshold, cfg.API.BreakerCooldown)
	}
	output.Println()

	output.Bold("Alerts")
	output.Printf("  Mutation Policy: %s\n", cfg.Alerts.MutationPolicy)
	output.Printf("  Badge Scope:     %s\n", cfg.Alerts.BadgeScope)
	output.Println()

	output.Bold("Snapshot")
	output.Printf("  Refresh:         %s\n", cfg.Snapshot.RefreshSchedule)
	output.Printf("  Cache:           %v\n", cfg.Snapshot.CacheEnabled)
	if cfg.Snapshot.CacheEnabled {
		output.Printf("  Redis:           %s (db %d)\n", cfg.Redis.Addr, cfg.Redis.DB)
		output.Printf("  Cache TTL:       %s\n", cfg.Snapshot.CacheTTL)
	}
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Terminal:        %v (bell %v)\n", cfg.Notify.Enabled, cfg.Notify.Bell)
	if cfg.Notify.WebhookURL != "" {
		output.Printf("  Webhook:         %s\n", cfg.Notify.WebhookURL)
	}
	output.Println()

	output.Bold("Server")
	output.Printf("  Port:            %d\n", cfg.Server.Port)
	output.Printf("  Database:        %s\n", cfg.Server.DBPath)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %v\n", cfg.Logging.File)
}
