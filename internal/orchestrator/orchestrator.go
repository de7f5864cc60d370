// Package orchestrator implements the scan orchestrator module: scan job
// lifecycle management, type-specific pipelines, incremental change
// detection, bounded job concurrency, and the scheduled-scan loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AveryNolan/devscope/internal/projects"
	"github.com/AveryNolan/devscope/internal/runtime"
	"github.com/AveryNolan/devscope/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin         = (*Module)(nil)
	_ plugin.HealthReporter = (*Module)(nil)
)

// maxRetainedJobs bounds the in-memory job table; the oldest terminal jobs
// beyond this are evicted (their summaries remain in the database).
const maxRetainedJobs = 100

// ProjectDiscoverer finds and persists projects. Possibly slow, I/O bound.
type ProjectDiscoverer interface {
	DiscoverAndAnalyze(ctx context.Context, basePath string) ([]projects.ProjectAnalysis, error)
	Save(ctx context.Context, analysis *projects.ProjectAnalysis) (string, error)
}

// ProjectAnalyzer produces one project's analysis result. The orchestrator
// only aggregates the returned counts and score.
type ProjectAnalyzer interface {
	Analyze(ctx context.Context, projectPath, projectID string) (*projects.AnalysisResult, error)
}

// ProjectRegistry provides read access to tracked projects and records scan
// outcomes. Reads must tolerate an empty registry.
type ProjectRegistry interface {
	ListActive(ctx context.Context) ([]projects.Project, error)
	RecordScan(ctx context.Context, id string, score float64) error
}

// RuntimeMonitor triggers runtime rescans and exposes the latest snapshot.
type RuntimeMonitor interface {
	Refresh(ctx context.Context) error
	Processes() []runtime.ProcessRecord
	Services() []runtime.ServiceRecord
	Containers() []runtime.ContainerRecord
}

// OrchestratorSnapshot is the aggregate status returned by Status().
type OrchestratorSnapshot struct {
	TotalScans      int           `json:"total_scans"`
	SuccessfulScans int           `json:"successful_scans"`
	FailedScans     int           `json:"failed_scans"`
	AverageDuration time.Duration `json:"average_duration"`
	LastFullScan    *time.Time    `json:"last_full_scan,omitempty"`
	ActiveJobs      int           `json:"active_jobs"`
	Healthy         bool          `json:"healthy"`
}

// Module implements the scan orchestrator plugin.
type Module struct {
	logger *zap.Logger
	bus    plugin.EventBus
	cfg    OrchestratorConfig

	discoverer ProjectDiscoverer
	analyzer   ProjectAnalyzer
	registry   ProjectRegistry
	runtime    RuntimeMonitor
	registerer prometheus.Registerer

	store    *orchStore
	detector *ChangeDetector
	metrics  *orchMetrics

	mu              sync.Mutex
	jobs            map[string]*ScanJob
	active          int
	shuttingDown    bool
	totalScans      int
	successfulScans int
	failedScans     int
	avgDuration     time.Duration
	lastFullScan    time.Time
	lastIncremental time.Time
	lastFull        time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new orchestrator module instance.
func New() *Module {
	return &Module{
		jobs:   make(map[string]*ScanJob),
		stopCh: make(chan struct{}),
	}
}

// SetCollaborators wires the discovery, analysis, and registry
// collaborators. Must be called before Start.
func (m *Module) SetCollaborators(d ProjectDiscoverer, a ProjectAnalyzer, r ProjectRegistry) {
	m.discoverer = d
	m.analyzer = a
	m.registry = r
}

// SetRuntimeMonitor wires the runtime monitor used for runtime scan phases.
func (m *Module) SetRuntimeMonitor(rt RuntimeMonitor) {
	m.runtime = rt
}

// SetMetricsRegisterer wires the Prometheus registry. Optional.
func (m *Module) SetMetricsRegisterer(reg prometheus.Registerer) {
	m.registerer = reg
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "orchestrator",
		Version:      "0.1.0",
		Description:  "Scan job lifecycle, pipelines, and scheduled scans",
		Dependencies: []string{"projects", "runtime"},
		Required:     true,
		Roles:        []string{"scanning"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if err := deps.Config.Unmarshal(&m.cfg); err != nil {
		return err
	}

	if err := deps.Store.Migrate(ctx, "orchestrator", migrations()); err != nil {
		return err
	}

	m.store = newOrchStore(deps.Store.DB(), m.logger.Named("store"))
	m.detector = NewChangeDetector(m.store, m.logger.Named("changedetect"))
	m.metrics = newOrchMetrics(m.registerer)

	now := time.Now()
	m.lastIncremental = now
	m.lastFull = now

	m.logger.Info("orchestrator initialized",
		zap.String("base_path", m.cfg.BasePath),
		zap.Int("max_concurrent_jobs", m.cfg.MaxConcurrentJobs),
	)
	return nil
}

// ValidateConfig rejects configurations the pipelines cannot run with.
func (m *Module) ValidateConfig() error {
	if m.cfg.MaxConcurrentJobs < 1 {
		return fmt.Errorf("max_concurrent_jobs must be at least 1, got %d", m.cfg.MaxConcurrentJobs)
	}
	if m.cfg.MaxProjectsPerBatch < 1 {
		return fmt.Errorf("max_projects_per_batch must be at least 1, got %d", m.cfg.MaxProjectsPerBatch)
	}
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	if m.discoverer == nil || m.analyzer == nil || m.registry == nil {
		return fmt.Errorf("orchestrator: collaborators not wired")
	}
	if m.cfg.ScheduleInterval > 0 {
		m.wg.Add(1)
		go m.runScheduler()
	}
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()
	m.stopOnce.Do(func() { close(m.stopCh) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health reports unhealthy when the orchestrator is saturated.
func (m *Module) Health() plugin.HealthStatus {
	m.mu.Lock()
	saturated := m.active >= m.cfg.MaxConcurrentJobs
	active := m.active
	m.mu.Unlock()

	if saturated {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "all job slots busy",
			Details: map[string]string{"active_jobs": fmt.Sprintf("%d", active)},
		}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// StartScan creates a job and schedules its execution on an independent
// goroutine, returning the job ID immediately. Excess requests beyond
// max_concurrent_jobs are rejected with ErrTooManyJobs, never queued; the
// caller may retry.
func (m *Module) StartScan(ctx context.Context, scanType ScanType, projectFilter []string) (string, error) {
	switch scanType {
	case ScanFull, ScanIncremental, ScanRuntimeOnly, ScanAnalysisOnly, ScanDiscoveryOnly:
	default:
		return "", ErrUnknownScan
	}

	job := newJob(scanType, projectFilter)

	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		return "", ErrShuttingDown
	}
	if m.active >= m.cfg.MaxConcurrentJobs {
		m.mu.Unlock()
		return "", ErrTooManyJobs
	}
	m.jobs[job.ID()] = job
	m.active++
	m.pruneJobsLocked()
	m.mu.Unlock()

	m.metrics.jobsStarted.WithLabelValues(string(scanType)).Inc()
	m.metrics.activeJobs.Inc()

	m.wg.Add(1)
	go m.runJob(job)

	m.logger.Info("scan job started",
		zap.String("job_id", job.ID()),
		zap.String("scan_type", string(scanType)),
	)
	return job.ID(), nil
}

// runJob executes one job end to end. Panics and errors never escape this
// goroutine; they become FAILED jobs so concurrent jobs and the scheduler
// loop are unaffected by one job's crash.
func (m *Module) runJob(job *ScanJob) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.JobTimeout)
	defer cancel()

	job.markRunning()
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in scan pipeline: %v", r)
			}
		}()
		return m.execute(ctx, job)
	}()

	snap := job.Snapshot()
	switch {
	case snap.Status.terminal():
		// Pipeline finished the job itself.
	case errors.Is(err, errCancelled) || job.cancelled():
		job.markCancelled()
	case err != nil:
		job.fail(err.Error())
	default:
		job.fail("pipeline ended without a result")
	}

	m.finishJob(job, time.Since(start))
}

func (m *Module) finishJob(job *ScanJob, duration time.Duration) {
	snap := job.Snapshot()

	m.mu.Lock()
	m.active--
	m.totalScans++
	switch snap.Status {
	case StatusCompleted:
		m.successfulScans++
		if snap.ScanType == ScanFull {
			m.lastFullScan = time.Now()
		}
	case StatusFailed:
		m.failedScans++
	}
	// Running average over all finished scans.
	m.avgDuration += (duration - m.avgDuration) / time.Duration(m.totalScans)
	m.mu.Unlock()

	m.metrics.activeJobs.Dec()
	m.metrics.jobsFinished.WithLabelValues(string(snap.Status)).Inc()
	m.metrics.jobDuration.Observe(duration.Seconds())

	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.store.SaveJobSummary(persistCtx, snap)

	m.bus.PublishAsync(persistCtx, plugin.Event{
		Topic:     TopicJobFinished,
		Source:    "orchestrator",
		Timestamp: time.Now().UTC(),
		Payload: JobFinishedEvent{
			JobID:    snap.ID,
			ScanType: snap.ScanType,
			Status:   snap.Status,
		},
	})

	m.logger.Info("scan job finished",
		zap.String("job_id", snap.ID),
		zap.String("scan_type", string(snap.ScanType)),
		zap.String("status", string(snap.Status)),
		zap.Int("errors", len(snap.Errors)),
		zap.Duration("duration", duration),
	)
}

// GetJobStatus returns a snapshot of the job. Safe to poll concurrently
// with job execution.
func (m *Module) GetJobStatus(jobID string) (JobSnapshot, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return JobSnapshot{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// CancelJob flips the job's cooperative cancellation flag. Returns false
// when the job is unknown or already terminal. The job finishes its current
// batch item before observing the flag.
func (m *Module) CancelJob(jobID string) bool {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return job.requestCancel()
}

// Jobs returns snapshots of all retained jobs, newest first.
func (m *Module) Jobs() []JobSnapshot {
	m.mu.Lock()
	snaps := make([]JobSnapshot, 0, len(m.jobs))
	for _, job := range m.jobs {
		snaps = append(snaps, job.Snapshot())
	}
	m.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps
}

// Status returns the aggregate orchestrator snapshot.
func (m *Module) Status() OrchestratorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := OrchestratorSnapshot{
		TotalScans:      m.totalScans,
		SuccessfulScans: m.successfulScans,
		FailedScans:     m.failedScans,
		AverageDuration: m.avgDuration,
		ActiveJobs:      m.active,
		Healthy:         m.active < m.cfg.MaxConcurrentJobs,
	}
	if !m.lastFullScan.IsZero() {
		t := m.lastFullScan
		snap.LastFullScan = &t
	}
	return snap
}

// pruneJobsLocked evicts the oldest terminal jobs beyond the retention cap.
// Caller holds m.mu.
func (m *Module) pruneJobsLocked() {
	if len(m.jobs) <= maxRetainedJobs {
		return
	}
	type entry struct {
		id      string
		created time.Time
	}
	var terminal []entry
	for id, job := range m.jobs {
		snap := job.Snapshot()
		if snap.Status.terminal() {
			terminal = append(terminal, entry{id: id, created: snap.CreatedAt})
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].created.Before(terminal[j].created)
	})
	for _, e := range terminal {
		if len(m.jobs) <= maxRetainedJobs {
			break
		}
		delete(m.jobs, e.id)
	}
}
