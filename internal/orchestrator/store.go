package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// orchStore persists checksum state and job summaries. Job summary writes
// are fire-and-forget: a failed write is logged, never retried, and never
// affects the job outcome.
type orchStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func newOrchStore(db *sql.DB, logger *zap.Logger) *orchStore {
	return &orchStore{db: db, logger: logger}
}

// LoadChecksums reads the full project checksum map.
func (s *orchStore) LoadChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_path, checksum FROM project_checksums`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var path, sum string
		if err := rows.Scan(&path, &sum); err != nil {
			return nil, err
		}
		result[path] = sum
	}
	return result, rows.Err()
}

// SaveChecksum upserts one project's checksum.
func (s *orchStore) SaveChecksum(ctx context.Context, path, sum string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_checksums (project_path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project_path) DO UPDATE SET checksum = excluded.checksum,
			updated_at = excluded.updated_at`,
		path, sum, time.Now().UTC(),
	)
	return err
}

// SaveJobSummary records a terminal job for later inspection.
func (s *orchStore) SaveJobSummary(ctx context.Context, snap JobSnapshot) {
	summary := ""
	if snap.Results != nil {
		if b, err := json.Marshal(snap.Results); err == nil {
			summary = string(b)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_jobs
			(id, scan_type, status, created_at, started_at, completed_at,
			 total_projects, processed_projects, error_count, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status,
			completed_at = excluded.completed_at,
			total_projects = excluded.total_projects,
			processed_projects = excluded.processed_projects,
			error_count = excluded.error_count,
			summary = excluded.summary`,
		snap.ID, snap.ScanType, snap.Status, snap.CreatedAt,
		nullableTime(snap.StartedAt), nullableTime(snap.CompletedAt),
		snap.TotalProjects, snap.ProcessedProjects, len(snap.Errors), summary,
	)
	if err != nil {
		s.logger.Warn("failed to persist job summary",
			zap.String("job_id", snap.ID), zap.Error(err))
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
