package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Directory provides database access to the tracked-project registry.
type Directory struct {
	db *sql.DB
}

// NewDirectory creates a Directory backed by the given database.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Upsert inserts a discovered project or refreshes an existing one (matched
// by path). Returns the project ID.
func (d *Directory) Upsert(ctx context.Context, a *ProjectAnalysis) (string, error) {
	existing, err := d.GetByPath(ctx, a.Path)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if existing != nil {
		_, err = d.db.ExecContext(ctx, `
			UPDATE projects SET name = ?, technologies = ?, updated_at = ?
			WHERE id = ?`,
			a.Name, strings.Join(a.Technologies, ","), now, existing.ID,
		)
		if err != nil {
			return "", fmt.Errorf("update project: %w", err)
		}
		return existing.ID, nil
	}

	id := uuid.NewString()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO projects (id, path, name, status, technologies, overall_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		id, a.Path, a.Name, StatusActive, strings.Join(a.Technologies, ","), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

// GetByPath returns the project rooted at path. Returns nil, nil if not found.
func (d *Directory) GetByPath(ctx context.Context, path string) (*Project, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, path, name, status, technologies, overall_score, last_scanned_at, created_at, updated_at
		FROM projects WHERE path = ?`, path)
	return scanProject(row)
}

// Get returns a project by ID. Returns nil, nil if not found.
func (d *Directory) Get(ctx context.Context, id string) (*Project, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, path, name, status, technologies, overall_score, last_scanned_at, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// ListActive returns all active projects. An empty result is valid.
func (d *Directory) ListActive(ctx context.Context) ([]Project, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, path, name, status, technologies, overall_score, last_scanned_at, created_at, updated_at
		FROM projects WHERE status = ? ORDER BY path`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var result []Project
	for rows.Next() {
		p, err := scanProjectRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// Mappings returns path -> project ID for all active projects. Used by the
// runtime monitor to associate processes with projects. Tolerates an empty
// registry without error.
func (d *Directory) Mappings(ctx context.Context) (map[string]string, error) {
	list, err := d.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(list))
	for i := range list {
		m[list[i].Path] = list[i].ID
	}
	return m, nil
}

// RecordScan stores the latest analysis outcome for a project.
func (d *Directory) RecordScan(ctx context.Context, id string, score float64) error {
	now := time.Now().UTC()
	_, err := d.db.ExecContext(ctx, `
		UPDATE projects SET overall_score = ?, last_scanned_at = ?, updated_at = ? WHERE id = ?`,
		score, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row *sql.Row) (*Project, error) {
	p, err := scanProjectRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanProjectRows(row rowScanner) (*Project, error) {
	var p Project
	var techs string
	var lastScanned sql.NullTime
	err := row.Scan(&p.ID, &p.Path, &p.Name, &p.Status, &techs,
		&p.OverallScore, &lastScanned, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	if techs != "" {
		p.Technologies = strings.Split(techs, ",")
	}
	if lastScanned.Valid {
		t := lastScanned.Time
		p.LastScannedAt = &t
	}
	return &p, nil
}
