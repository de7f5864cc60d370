package projects

import (
	"database/sql"

	"github.com/AveryNolan/devscope/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create projects table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS projects (
						id TEXT PRIMARY KEY,
						path TEXT NOT NULL UNIQUE,
						name TEXT NOT NULL,
						status TEXT NOT NULL DEFAULT 'active',
						technologies TEXT NOT NULL DEFAULT '',
						overall_score REAL NOT NULL DEFAULT 0,
						last_scanned_at DATETIME,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status)`,
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
