package runtime

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// retentionWindow bounds how long samples and snapshots are kept.
const retentionWindow = 7 * 24 * time.Hour

// statusStore persists monitor output for later inspection. Writes are
// best-effort: a failed insert is logged and dropped, never allowed to stall
// the monitor loop.
type statusStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func newStatusStore(db *sql.DB, logger *zap.Logger) *statusStore {
	return &statusStore{db: db, logger: logger}
}

func (s *statusStore) SaveSample(ctx context.Context, sample MetricsSample) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_samples
			(timestamp, cpu_percent, memory_percent, disk_percent,
			 net_bytes_sent, net_bytes_recv, process_count, active_connections)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.Timestamp, sample.CPUPercent, sample.MemoryPercent, sample.DiskPercent,
		sample.NetBytesSent, sample.NetBytesRecv, sample.ProcessCount, sample.ActiveConnections,
	)
	if err != nil {
		s.logger.Warn("failed to persist metrics sample", zap.Error(err))
	}
}

func (s *statusStore) SaveProcesses(ctx context.Context, takenAt time.Time, records []ProcessRecord) {
	for i := range records {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO process_snapshots
				(taken_at, pid, name, cpu_percent, memory_percent, memory_rss, project_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			takenAt, records[i].PID, records[i].Name,
			records[i].CPUPercent, records[i].MemoryPercent, records[i].MemoryRSS,
			records[i].ProjectID,
		)
		if err != nil {
			s.logger.Warn("failed to persist process snapshot",
				zap.Int32("pid", records[i].PID), zap.Error(err))
			return
		}
	}
}

func (s *statusStore) SaveAlert(ctx context.Context, alert Alert) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_alerts
			(alert_type, severity, message, project_id, threshold_exceeded, current_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.AlertType, alert.Severity, alert.Message, alert.ProjectID,
		alert.ThresholdExceeded, alert.CurrentValue, alert.Timestamp,
	)
	if err != nil {
		s.logger.Warn("failed to persist alert", zap.Error(err))
	}
}

// Prune removes samples and snapshots older than the retention window.
func (s *statusStore) Prune(ctx context.Context) {
	cutoff := time.Now().Add(-retentionWindow).UTC()
	for _, q := range []string{
		`DELETE FROM runtime_samples WHERE timestamp < ?`,
		`DELETE FROM process_snapshots WHERE taken_at < ?`,
		`DELETE FROM runtime_alerts WHERE created_at < ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, cutoff); err != nil {
			s.logger.Warn("retention prune failed", zap.Error(err))
		}
	}
}

// RecentAlerts lists the newest alerts, most recent first.
func (s *statusStore) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_type, severity, message, project_id,
		       threshold_exceeded, current_value, created_at
		FROM runtime_alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.AlertType, &a.Severity, &a.Message, &a.ProjectID,
			&a.ThresholdExceeded, &a.CurrentValue, &a.Timestamp); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
