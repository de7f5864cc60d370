package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// runScheduler is the scheduled-scan loop. One ticker wakes at
// schedule_interval; per wake it triggers an incremental scan if due, else a
// full scan if due. The triggers are mutually exclusive per wake to bound
// resource usage.
func (m *Module) runScheduler() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ScheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tickSchedule()
		}
	}
}

func (m *Module) tickSchedule() {
	now := time.Now()

	m.mu.Lock()
	incrementalDue := now.Sub(m.lastIncremental) >= m.cfg.IncrementalInterval
	fullDue := now.Sub(m.lastFull) >= m.cfg.FullInterval
	m.mu.Unlock()

	var (
		jobID    string
		scanType ScanType
		err      error
	)
	switch {
	case incrementalDue:
		scanType = ScanIncremental
		jobID, err = m.StartScan(context.Background(), ScanIncremental, nil)
	case fullDue:
		scanType = ScanFull
		jobID, err = m.StartScan(context.Background(), ScanFull, nil)
	default:
		return
	}

	if err != nil {
		if errors.Is(err, ErrTooManyJobs) {
			m.logger.Warn("scheduled scan skipped, orchestrator busy",
				zap.String("scan_type", string(scanType)))
			return
		}
		if !errors.Is(err, ErrShuttingDown) {
			m.logger.Error("scheduled scan failed to start",
				zap.String("scan_type", string(scanType)), zap.Error(err))
		}
		return
	}

	m.mu.Lock()
	// A full scan subsumes an incremental one.
	m.lastIncremental = now
	if scanType == ScanFull {
		m.lastFull = now
	}
	m.mu.Unlock()

	m.logger.Info("scheduled scan started",
		zap.String("scan_type", string(scanType)),
		zap.String("job_id", jobID),
	)
}
