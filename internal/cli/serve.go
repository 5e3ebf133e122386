package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"alertdash/internal/server"
	"alertdash/internal/store"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference dashboard backend",
		Long: `Serve alert CRUD, holdings and watchlist over HTTP from a SQLite
database. --seed loads holdings and watchlist records from a JSON file
of the form {"holdings": [...], "watchlist": [...]} before serving.`,
		Example: `  alertdash serve
  alertdash serve --port 9090 --seed market.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetInt("port")
			if port == 0 {
				port = app.Config.Server.Port
			}
			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				dbPath = app.Config.Server.DBPath
			}

			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
			db, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if seedPath, _ := cmd.Flags().GetString("seed"); seedPath != "" {
				if err := seed(cmd.Context(), db, seedPath); err != nil {
					return err
				}
				app.Logger.Info().Str("file", seedPath).Msg("Market data seeded")
			}

			srv := server.New(server.Config{
				Port:  port,
				Log:   app.Logger,
				Store: db,
			})

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			app.Logger.Info().Int("port", port).Str("db", dbPath).Msg("Server started")

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				app.Logger.Error().Err(err).Msg("Server forced to shutdown")
				return err
			}
			app.Logger.Info().Msg("Server stopped")
			return nil
		},
	}

	cmd.Flags().Int("port", 0, "listen port (default: server.port)")
	cmd.Flags().String("db", "", "SQLite database path (default: server.db_path)")
	cmd.Flags().String("seed", "", "JSON file of holdings and watchlist records to load")
	return cmd
}

func seed(ctx context.Context, db store.DataStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var sd store.SeedData
	if err := json.Unmarshal(data, &sd); err != nil {
		return fmt.Errorf("decoding seed file: %w", err)
	}
	return db.Seed(ctx, sd)
}
