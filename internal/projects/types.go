package projects

import "time"

// Project statuses stored in the directory.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Project is a tracked development project.
type Project struct {
	ID            string     `json:"id"`
	Path          string     `json:"path"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Technologies  []string   `json:"technologies"`
	OverallScore  float64    `json:"overall_score"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ProjectAnalysis is the output of project discovery: a candidate project
// rooted at Path with the technologies inferred from its manifests.
type ProjectAnalysis struct {
	Path         string   `json:"path"`
	Name         string   `json:"name"`
	Technologies []string `json:"technologies"`
	Manifests    []string `json:"manifests"`
}

// AnalysisResult is the output of per-project deep analysis. The orchestrator
// only aggregates the counts and scores; it never inspects analyzer internals.
type AnalysisResult struct {
	ProjectID      string  `json:"project_id"`
	ProjectPath    string  `json:"project_path"`
	SecurityIssues int     `json:"security_issues"`
	QualityIssues  int     `json:"quality_issues"`
	TestsFound     int     `json:"tests_found"`
	DocsFound      int     `json:"docs_found"`
	FilesScanned   int     `json:"files_scanned"`
	OverallScore   float64 `json:"overall_score"`
}
