package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScanType selects the pipeline a job executes.
type ScanType string

const (
	ScanFull          ScanType = "full"
	ScanIncremental   ScanType = "incremental"
	ScanRuntimeOnly   ScanType = "runtime_only"
	ScanAnalysisOnly  ScanType = "analysis_only"
	ScanDiscoveryOnly ScanType = "discovery_only"
)

// JobStatus is a scan job's lifecycle state.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Sentinel errors returned by StartScan and job queries.
var (
	ErrTooManyJobs  = errors.New("orchestrator: max concurrent jobs reached")
	ErrShuttingDown = errors.New("orchestrator: shutting down")
	ErrJobNotFound  = errors.New("orchestrator: job not found")
	ErrUnknownScan  = errors.New("orchestrator: unknown scan type")
)

// JobResults is the typed result union; each scan type has its own variant.
type JobResults interface {
	Kind() ScanType
}

// FullScanResults is the outcome of a full pipeline run.
type FullScanResults struct {
	ProjectsDiscovered int      `json:"projects_discovered"`
	ProjectsAnalyzed   int      `json:"projects_analyzed"`
	SecurityIssues     int      `json:"security_issues"`
	QualityIssues      int      `json:"quality_issues"`
	Technologies       []string `json:"technologies"`
	AverageScore       float64  `json:"average_score"`
	RuntimeRefreshed   bool     `json:"runtime_refreshed"`
}

func (FullScanResults) Kind() ScanType { return ScanFull }

// IncrementalScanResults is the outcome of an incremental pipeline run.
type IncrementalScanResults struct {
	ChangedProjects  int     `json:"changed_projects"`
	ProjectsAnalyzed int     `json:"projects_analyzed"`
	SecurityIssues   int     `json:"security_issues"`
	QualityIssues    int     `json:"quality_issues"`
	AverageScore     float64 `json:"average_score"`
	RuntimeRefreshed bool    `json:"runtime_refreshed"`
}

func (IncrementalScanResults) Kind() ScanType { return ScanIncremental }

// RuntimeScanResults is the outcome of a runtime-only run.
type RuntimeScanResults struct {
	Processes  int `json:"processes"`
	Services   int `json:"services"`
	Containers int `json:"containers"`
}

func (RuntimeScanResults) Kind() ScanType { return ScanRuntimeOnly }

// AnalysisScanResults is the outcome of an analysis-only run.
type AnalysisScanResults struct {
	ProjectsAnalyzed int     `json:"projects_analyzed"`
	SecurityIssues   int     `json:"security_issues"`
	QualityIssues    int     `json:"quality_issues"`
	AverageScore     float64 `json:"average_score"`
}

func (AnalysisScanResults) Kind() ScanType { return ScanAnalysisOnly }

// DiscoveryScanResults is the outcome of a discovery-only run.
type DiscoveryScanResults struct {
	ProjectsDiscovered int `json:"projects_discovered"`
	ProjectsSaved      int `json:"projects_saved"`
}

func (DiscoveryScanResults) Kind() ScanType { return ScanDiscoveryOnly }

// ScanJob is one unit of orchestrated work. All mutation happens through its
// methods, which enforce the state machine: PENDING -> RUNNING ->
// {COMPLETED, FAILED, CANCELLED}, with monotonically non-decreasing progress
// while running. Owned by the orchestrator; mutated only by the goroutine
// executing the job.
type ScanJob struct {
	mu sync.Mutex

	id            string
	scanType      ScanType
	projectFilter []string

	status      JobStatus
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	progress          float64
	totalProjects     int
	processedProjects int
	errs              []string
	results           JobResults

	cancelRequested bool
}

func newJob(scanType ScanType, filter []string) *ScanJob {
	return &ScanJob{
		id:            uuid.NewString(),
		scanType:      scanType,
		projectFilter: filter,
		status:        StatusPending,
		createdAt:     time.Now().UTC(),
	}
}

// ID returns the job's opaque identifier.
func (j *ScanJob) ID() string { return j.id }

// Type returns the job's scan type.
func (j *ScanJob) Type() ScanType { return j.scanType }

func (j *ScanJob) markRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return
	}
	j.status = StatusRunning
	j.startedAt = time.Now().UTC()
}

func (j *ScanJob) complete(results JobResults) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return
	}
	j.status = StatusCompleted
	j.results = results
	j.progress = 100
	j.completedAt = time.Now().UTC()
}

func (j *ScanJob) fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning && j.status != StatusPending {
		return
	}
	j.status = StatusFailed
	j.errs = append(j.errs, msg)
	j.completedAt = time.Now().UTC()
}

func (j *ScanJob) markCancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning && j.status != StatusPending {
		return
	}
	j.status = StatusCancelled
	j.completedAt = time.Now().UTC()
}

// requestCancel flips the cooperative cancellation flag. Returns false when
// the job is already terminal.
func (j *ScanJob) requestCancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending && j.status != StatusRunning {
		return false
	}
	j.cancelRequested = true
	return true
}

// cancelled reports whether cooperative cancellation was requested.
// Pipelines check this between phases and between batch items.
func (j *ScanJob) cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// setProgress advances progress to p. Decreases are ignored so that
// observed progress is monotonic while the job runs.
func (j *ScanJob) setProgress(p float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusRunning {
		return
	}
	if p > j.progress {
		j.progress = p
	}
}

func (j *ScanJob) setTotal(n int) {
	j.mu.Lock()
	j.totalProjects = n
	j.mu.Unlock()
}

func (j *ScanJob) incProcessed() {
	j.mu.Lock()
	j.processedProjects++
	j.mu.Unlock()
}

func (j *ScanJob) addError(msg string) {
	j.mu.Lock()
	j.errs = append(j.errs, msg)
	j.mu.Unlock()
}

// JobSnapshot is a point-in-time copy of a job's observable state. Safe to
// retain and read concurrently with job execution.
type JobSnapshot struct {
	ID                string     `json:"id"`
	ScanType          ScanType   `json:"scan_type"`
	Status            JobStatus  `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Progress          float64    `json:"progress"`
	TotalProjects     int        `json:"total_projects"`
	ProcessedProjects int        `json:"processed_projects"`
	Errors            []string   `json:"errors,omitempty"`
	Results           JobResults `json:"results,omitempty"`
}

// Snapshot copies the job's current state.
func (j *ScanJob) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := JobSnapshot{
		ID:                j.id,
		ScanType:          j.scanType,
		Status:            j.status,
		CreatedAt:         j.createdAt,
		Progress:          j.progress,
		TotalProjects:     j.totalProjects,
		ProcessedProjects: j.processedProjects,
		Results:           j.results,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		snap.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		snap.CompletedAt = &t
	}
	if len(j.errs) > 0 {
		snap.Errors = append([]string(nil), j.errs...)
	}
	return snap
}

// terminal reports whether the job reached a final state.
func (s JobStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
