package orchestrator

import "time"

// Event topics published by the orchestrator module.
const (
	TopicScanSummary = "orchestrator.scan.summary"
	TopicJobFinished = "orchestrator.job.finished"
)

// ScanSummary is the payload for TopicScanSummary, emitted after a completed
// scan that analyzed projects. Consumers (context stores, dashboards) treat
// it as best-effort.
type ScanSummary struct {
	JobID            string        `json:"job_id"`
	ScanType         ScanType      `json:"scan_type"`
	ProjectsAnalyzed int           `json:"projects_analyzed"`
	SecurityIssues   int           `json:"security_issues"`
	QualityIssues    int           `json:"quality_issues"`
	Technologies     []string      `json:"technologies"`
	AverageScore     float64       `json:"average_score"`
	Duration         time.Duration `json:"duration"`
}

// JobFinishedEvent is the payload for TopicJobFinished.
type JobFinishedEvent struct {
	JobID    string    `json:"job_id"`
	ScanType ScanType  `json:"scan_type"`
	Status   JobStatus `json:"status"`
}
