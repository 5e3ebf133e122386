package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# alertdash configuration

[api]
# Base URL of the dashboard backend serving /alerts, /holdings and /watchlist
base_url = "http://localhost:8080"
# Per-request timeout
timeout = "15s"
# Attempts for read requests; mutations are never retried
retry_attempts = 3
# Watch mode stops calling the backend after this many consecutive
# failures, then probes again after the cooldown. 0 disables.
breaker_threshold = 5
breaker_cooldown = "30s"

[alerts]
# How update, delete and clear treat the local list when the backend fails:
#   rollback    - change locally first, restore on failure
#   pessimistic - change locally only after the backend accepts
#   legacy      - change locally first, keep the change on failure
mutation_policy = "rollback"
# Rule types the badge counts: "badge" (price rules only) or "table" (all)
badge_scope = "badge"

[snapshot]
# Refresh schedule for watch mode (cron syntax or "@every 30s")
refresh_schedule = "@every 30s"
# Share the last snapshot between runs through Redis
cache_enabled = false
cache_key = "alertdash:snapshot"
cache_ttl = "15m"

[redis]
addr = "localhost:6379"
password = ""
db = 0

[server]
# Reference backend
port = 8080
# db_path = "~/.config/alertdash/alertdash.db"

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
max_size = 50
max_backups = 5
max_age = 14

[notify]
# Print a line when an alert starts triggering in watch mode
enabled = true
# Ring the terminal bell with it
bell = false
# POST each notification as JSON to this URL
webhook_url = ""
webhook_timeout = "10s"

[ui]
color_enabled = true
time_format = "2006-01-02 15:04"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
