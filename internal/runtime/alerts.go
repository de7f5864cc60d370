package runtime

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// leakConfidence is the minimum correlation for a memory-leak trend alert.
const leakConfidence = 0.8

// AlertEngine converts threshold breaches and significant trends into
// de-duplicated alerts. Each (alert_type, scope) pair fires at most once
// per cooldown window; repeat triggers inside the window are suppressed,
// not queued.
type AlertEngine struct {
	cfg    RuntimeConfig
	trends *TrendAnalyzer
	logger *zap.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time // alert_type|scope -> last emission
	nowFunc  func() time.Time
}

// NewAlertEngine creates an alert engine with the given thresholds.
func NewAlertEngine(cfg RuntimeConfig, logger *zap.Logger) *AlertEngine {
	return &AlertEngine{
		cfg:      cfg,
		trends:   NewTrendAnalyzer(),
		logger:   logger,
		lastSent: make(map[string]time.Time),
		nowFunc:  time.Now,
	}
}

// CheckSample compares the latest system metrics sample against the
// configured thresholds and returns any alerts that pass cooldown.
func (e *AlertEngine) CheckSample(sample MetricsSample) []Alert {
	var alerts []Alert

	checks := []struct {
		alertType string
		value     float64
		limits    Thresholds
		unit      string
	}{
		{AlertHighCPU, sample.CPUPercent, e.cfg.CPU, "%"},
		{AlertHighMemory, sample.MemoryPercent, e.cfg.Memory, "%"},
		{AlertHighDisk, sample.DiskPercent, e.cfg.Disk, "%"},
		{AlertHighConnections, float64(sample.ActiveConnections), e.cfg.Connections, ""},
	}

	for _, c := range checks {
		severity, threshold, breached := classify(c.value, c.limits)
		if !breached {
			continue
		}
		if a := e.emit(Alert{
			AlertType:         c.alertType,
			Severity:          severity,
			Message:           fmt.Sprintf("%s at %.1f%s (threshold %.1f%s)", c.alertType, c.value, c.unit, threshold, c.unit),
			Timestamp:         sample.Timestamp,
			ThresholdExceeded: threshold,
			CurrentValue:      c.value,
		}, "system"); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts
}

// CheckProcess applies the per-process cpu/memory thresholds to one record.
// The process PID scopes de-duplication.
func (e *AlertEngine) CheckProcess(rec ProcessRecord) []Alert {
	var alerts []Alert
	scope := fmt.Sprintf("pid-%d", rec.PID)

	if severity, threshold, breached := classify(rec.CPUPercent, e.cfg.ProcessCPU); breached {
		if a := e.emit(Alert{
			ProjectID:         rec.ProjectID,
			AlertType:         AlertProcessCPU,
			Severity:          severity,
			Message:           fmt.Sprintf("process %s (pid %d) cpu at %.1f%%", rec.Name, rec.PID, rec.CPUPercent),
			Details:           map[string]any{"pid": rec.PID, "name": rec.Name},
			Timestamp:         e.nowFunc().UTC(),
			ThresholdExceeded: threshold,
			CurrentValue:      rec.CPUPercent,
		}, scope); a != nil {
			alerts = append(alerts, *a)
		}
	}

	if severity, threshold, breached := classify(rec.MemoryPercent, e.cfg.ProcessMemory); breached {
		if a := e.emit(Alert{
			ProjectID:         rec.ProjectID,
			AlertType:         AlertProcessMemory,
			Severity:          severity,
			Message:           fmt.Sprintf("process %s (pid %d) memory at %.1f%%", rec.Name, rec.PID, rec.MemoryPercent),
			Details:           map[string]any{"pid": rec.PID, "name": rec.Name},
			Timestamp:         e.nowFunc().UTC(),
			ThresholdExceeded: threshold,
			CurrentValue:      rec.MemoryPercent,
		}, scope); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts
}

// CheckLeak runs the memory-leak trend check over a process's RSS history.
// A leak alert requires a significant increasing trend with correlation
// above 0.8 and an extrapolated growth rate over the configured bytes/min
// floor. Returns nil when there is nothing to report.
func (e *AlertEngine) CheckLeak(rec ProcessRecord, rssHistory []float64, sampleInterval time.Duration) *Alert {
	trend := e.trends.AnalyzeLeak(rssHistory)
	if !trend.Significant || trend.Direction != "increasing" || trend.Confidence <= leakConfidence {
		return nil
	}

	// Slope is bytes per sample; extrapolate to bytes per minute.
	perMinute := trend.Slope * float64(time.Minute) / float64(sampleInterval)
	if perMinute < e.cfg.LeakMinBytesPerMinute {
		return nil
	}

	return e.emit(Alert{
		ProjectID: rec.ProjectID,
		AlertType: AlertPotentialMemLeak,
		Severity:  SeverityHigh,
		Message: fmt.Sprintf("process %s (pid %d) rss growing %.0f bytes/min (confidence %.2f)",
			rec.Name, rec.PID, perMinute, trend.Confidence),
		Details: map[string]any{
			"pid":             rec.PID,
			"name":            rec.Name,
			"bytes_per_min":   perMinute,
			"confidence":      trend.Confidence,
			"samples":         len(rssHistory),
			"current_rss":     rssHistory[len(rssHistory)-1],
		},
		Timestamp:         e.nowFunc().UTC(),
		ThresholdExceeded: e.cfg.LeakMinBytesPerMinute,
		CurrentValue:      perMinute,
	}, fmt.Sprintf("pid-%d", rec.PID))
}

// emit applies cooldown de-duplication and returns the alert if it may
// fire, nil if suppressed.
func (e *AlertEngine) emit(alert Alert, scope string) *Alert {
	key := alert.AlertType + "|" + scope

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowFunc()
	if last, ok := e.lastSent[key]; ok && now.Sub(last) < e.cfg.AlertCooldown {
		e.logger.Debug("alert suppressed by cooldown",
			zap.String("alert_type", alert.AlertType),
			zap.String("scope", scope),
		)
		return nil
	}
	e.lastSent[key] = now

	e.logger.Warn("alert triggered",
		zap.String("alert_type", alert.AlertType),
		zap.String("severity", alert.Severity),
		zap.String("scope", scope),
		zap.Float64("value", alert.CurrentValue),
	)
	return &alert
}

// classify compares a value against warning/critical levels. Critical maps
// to the critical severity, warning to high.
func classify(value float64, limits Thresholds) (severity string, threshold float64, breached bool) {
	if limits.Critical > 0 && value >= limits.Critical {
		return SeverityCritical, limits.Critical, true
	}
	if limits.Warning > 0 && value >= limits.Warning {
		return SeverityHigh, limits.Warning, true
	}
	return "", 0, false
}
