package runtime

import (
	"database/sql"

	"github.com/AveryNolan/devscope/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create runtime snapshot and alert tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS runtime_samples (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						timestamp DATETIME NOT NULL,
						cpu_percent REAL NOT NULL,
						memory_percent REAL NOT NULL,
						disk_percent REAL NOT NULL,
						net_bytes_sent INTEGER NOT NULL,
						net_bytes_recv INTEGER NOT NULL,
						process_count INTEGER NOT NULL,
						active_connections INTEGER NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_runtime_samples_ts ON runtime_samples(timestamp)`,
					`CREATE TABLE IF NOT EXISTS process_snapshots (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						taken_at DATETIME NOT NULL,
						pid INTEGER NOT NULL,
						name TEXT NOT NULL,
						cpu_percent REAL NOT NULL,
						memory_percent REAL NOT NULL,
						memory_rss INTEGER NOT NULL,
						project_id TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX IF NOT EXISTS idx_process_snapshots_taken ON process_snapshots(taken_at)`,
					`CREATE TABLE IF NOT EXISTS runtime_alerts (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						alert_type TEXT NOT NULL,
						severity TEXT NOT NULL,
						message TEXT NOT NULL,
						project_id TEXT NOT NULL DEFAULT '',
						threshold_exceeded REAL NOT NULL,
						current_value REAL NOT NULL,
						created_at DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_runtime_alerts_type ON runtime_alerts(alert_type, created_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
