package orchestrator

import (
	"database/sql"

	"github.com/AveryNolan/devscope/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create scan job and checksum tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS scan_jobs (
						id TEXT PRIMARY KEY,
						scan_type TEXT NOT NULL,
						status TEXT NOT NULL,
						created_at DATETIME NOT NULL,
						started_at DATETIME,
						completed_at DATETIME,
						total_projects INTEGER NOT NULL DEFAULT 0,
						processed_projects INTEGER NOT NULL DEFAULT 0,
						error_count INTEGER NOT NULL DEFAULT 0,
						summary TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX IF NOT EXISTS idx_scan_jobs_created ON scan_jobs(created_at)`,
					`CREATE TABLE IF NOT EXISTS project_checksums (
						project_path TEXT PRIMARY KEY,
						checksum TEXT NOT NULL,
						updated_at DATETIME NOT NULL
					)`,
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
