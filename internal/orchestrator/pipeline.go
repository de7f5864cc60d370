package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AveryNolan/devscope/internal/projects"
	"github.com/AveryNolan/devscope/pkg/plugin"
)

// errCancelled signals cooperative cancellation observed at a phase boundary.
var errCancelled = errors.New("orchestrator: job cancelled")

// projectTarget is one project queued for analysis.
type projectTarget struct {
	ID   string
	Path string
}

// aggregate accumulates per-project analysis outcomes across a job.
type aggregate struct {
	mu       sync.Mutex
	analyzed int
	security int
	quality  int
	scoreSum float64
}

func (a *aggregate) add(r *projects.AnalysisResult) {
	a.mu.Lock()
	a.analyzed++
	a.security += r.SecurityIssues
	a.quality += r.QualityIssues
	a.scoreSum += r.OverallScore
	a.mu.Unlock()
}

func (a *aggregate) averageScore() float64 {
	if a.analyzed == 0 {
		return 0
	}
	return a.scoreSum / float64(a.analyzed)
}

// execute dispatches a running job to its pipeline. Phase errors abort the
// job; per-project errors inside a batch do not.
func (m *Module) execute(ctx context.Context, job *ScanJob) error {
	switch job.Type() {
	case ScanFull:
		return m.runFull(ctx, job)
	case ScanIncremental:
		return m.runIncremental(ctx, job)
	case ScanRuntimeOnly:
		return m.runRuntimeOnly(ctx, job)
	case ScanAnalysisOnly:
		return m.runAnalysisOnly(ctx, job)
	case ScanDiscoveryOnly:
		return m.runDiscoveryOnly(ctx, job)
	default:
		return ErrUnknownScan
	}
}

// runFull executes discovery, persistence, batched analysis, a runtime
// refresh, and summary emission, advancing progress at each phase boundary.
func (m *Module) runFull(ctx context.Context, job *ScanJob) error {
	start := time.Now()

	analyses, err := m.discoverer.DiscoverAndAnalyze(ctx, m.cfg.BasePath)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	job.setProgress(10)
	if err := checkpoint(ctx, job); err != nil {
		return err
	}

	targets := make([]projectTarget, 0, len(analyses))
	techSet := make(map[string]bool)
	for i := range analyses {
		if err := checkpoint(ctx, job); err != nil {
			return err
		}
		id, err := m.discoverer.Save(ctx, &analyses[i])
		if err != nil {
			return fmt.Errorf("persist project %s: %w", analyses[i].Path, err)
		}
		targets = append(targets, projectTarget{ID: id, Path: analyses[i].Path})
		for _, t := range analyses[i].Technologies {
			techSet[t] = true
		}
	}
	job.setProgress(20)

	job.setTotal(len(targets))
	job.setProgress(40)
	if err := checkpoint(ctx, job); err != nil {
		return err
	}

	agg := m.analyzeBatches(ctx, job, targets)
	job.setProgress(80)
	if err := checkpoint(ctx, job); err != nil {
		return err
	}

	runtimeOK := m.refreshRuntime(ctx)
	job.setProgress(90)

	results := FullScanResults{
		ProjectsDiscovered: len(analyses),
		ProjectsAnalyzed:   agg.analyzed,
		SecurityIssues:     agg.security,
		QualityIssues:      agg.quality,
		Technologies:       sortedKeys(techSet),
		AverageScore:       agg.averageScore(),
		RuntimeRefreshed:   runtimeOK,
	}
	m.publishSummary(ctx, ScanSummary{
		JobID:            job.ID(),
		ScanType:         ScanFull,
		ProjectsAnalyzed: agg.analyzed,
		SecurityIssues:   agg.security,
		QualityIssues:    agg.quality,
		Technologies:     results.Technologies,
		AverageScore:     results.AverageScore,
		Duration:         time.Since(start),
	})
	job.setProgress(95)

	job.complete(results)
	return nil
}

// runIncremental re-analyzes only projects whose checksum changed. Zero
// changed projects is the fast path: the job completes immediately.
func (m *Module) runIncremental(ctx context.Context, job *ScanJob) error {
	start := time.Now()

	tracked, err := m.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	byPath := make(map[string]string, len(tracked))
	paths := make([]string, 0, len(tracked))
	for i := range tracked {
		byPath[tracked[i].Path] = tracked[i].ID
		paths = append(paths, tracked[i].Path)
	}

	changed, err := m.detector.FindChangedProjects(ctx, paths)
	if err != nil {
		return fmt.Errorf("change detection: %w", err)
	}
	job.setProgress(20)

	if len(changed) == 0 {
		job.complete(IncrementalScanResults{ChangedProjects: 0})
		return nil
	}
	if err := checkpoint(ctx, job); err != nil {
		return err
	}

	targets := make([]projectTarget, 0, len(changed))
	for _, p := range changed {
		targets = append(targets, projectTarget{ID: byPath[p], Path: p})
	}
	job.setTotal(len(targets))

	agg := m.analyzeBatches(ctx, job, targets)
	job.setProgress(80)
	if err := checkpoint(ctx, job); err != nil {
		return err
	}

	runtimeOK := m.refreshRuntime(ctx)
	job.setProgress(90)

	results := IncrementalScanResults{
		ChangedProjects:  len(changed),
		ProjectsAnalyzed: agg.analyzed,
		SecurityIssues:   agg.security,
		QualityIssues:    agg.quality,
		AverageScore:     agg.averageScore(),
		RuntimeRefreshed: runtimeOK,
	}
	m.publishSummary(ctx, ScanSummary{
		JobID:            job.ID(),
		ScanType:         ScanIncremental,
		ProjectsAnalyzed: agg.analyzed,
		SecurityIssues:   agg.security,
		QualityIssues:    agg.quality,
		AverageScore:     results.AverageScore,
		Duration:         time.Since(start),
	})
	job.setProgress(95)

	job.complete(results)
	return nil
}

// runRuntimeOnly refreshes the runtime monitor snapshot and reports counts.
func (m *Module) runRuntimeOnly(ctx context.Context, job *ScanJob) error {
	if m.runtime == nil {
		return errors.New("runtime monitor not wired")
	}
	job.setProgress(10)
	if err := m.runtime.Refresh(ctx); err != nil {
		return fmt.Errorf("runtime refresh: %w", err)
	}
	job.setProgress(90)

	job.complete(RuntimeScanResults{
		Processes:  len(m.runtime.Processes()),
		Services:   len(m.runtime.Services()),
		Containers: len(m.runtime.Containers()),
	})
	return nil
}

// runAnalysisOnly analyzes the filtered (or full) tracked project set with
// no discovery and no runtime refresh.
func (m *Module) runAnalysisOnly(ctx context.Context, job *ScanJob) error {
	start := time.Now()

	tracked, err := m.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	filter := make(map[string]bool)
	for _, id := range job.projectFilter {
		filter[id] = true
	}

	var targets []projectTarget
	for i := range tracked {
		if len(filter) > 0 && !filter[tracked[i].ID] {
			continue
		}
		targets = append(targets, projectTarget{ID: tracked[i].ID, Path: tracked[i].Path})
	}
	job.setTotal(len(targets))
	job.setProgress(20)
	if err := checkpoint(ctx, job); err != nil {
		return err
	}

	agg := m.analyzeBatches(ctx, job, targets)
	if err := checkpoint(ctx, job); err != nil {
		return err
	}
	job.setProgress(90)

	results := AnalysisScanResults{
		ProjectsAnalyzed: agg.analyzed,
		SecurityIssues:   agg.security,
		QualityIssues:    agg.quality,
		AverageScore:     agg.averageScore(),
	}
	m.publishSummary(ctx, ScanSummary{
		JobID:            job.ID(),
		ScanType:         ScanAnalysisOnly,
		ProjectsAnalyzed: agg.analyzed,
		SecurityIssues:   agg.security,
		QualityIssues:    agg.quality,
		AverageScore:     results.AverageScore,
		Duration:         time.Since(start),
	})

	job.complete(results)
	return nil
}

// runDiscoveryOnly discovers and persists projects without analyzing them.
func (m *Module) runDiscoveryOnly(ctx context.Context, job *ScanJob) error {
	analyses, err := m.discoverer.DiscoverAndAnalyze(ctx, m.cfg.BasePath)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	job.setProgress(50)

	saved := 0
	for i := range analyses {
		if err := checkpoint(ctx, job); err != nil {
			return err
		}
		if _, err := m.discoverer.Save(ctx, &analyses[i]); err != nil {
			job.addError(fmt.Sprintf("persist %s: %v", analyses[i].Path, err))
			continue
		}
		saved++
	}
	job.setProgress(90)

	job.complete(DiscoveryScanResults{
		ProjectsDiscovered: len(analyses),
		ProjectsSaved:      saved,
	})
	return nil
}

// analyzeBatches analyzes targets in sequential batches of
// max_projects_per_batch, with the projects inside one batch analyzed
// concurrently. A failed project appends to job.errors and processing
// continues; cancellation is observed between batch items.
func (m *Module) analyzeBatches(ctx context.Context, job *ScanJob, targets []projectTarget) *aggregate {
	agg := &aggregate{}
	batchSize := m.cfg.MaxProjectsPerBatch
	if batchSize <= 0 {
		batchSize = 1
	}

	for offset := 0; offset < len(targets); offset += batchSize {
		if job.cancelled() || ctx.Err() != nil {
			return agg
		}
		end := offset + batchSize
		if end > len(targets) {
			end = len(targets)
		}

		var wg sync.WaitGroup
		for _, target := range targets[offset:end] {
			if job.cancelled() || ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(t projectTarget) {
				defer wg.Done()
				m.analyzeOne(ctx, job, t, agg)
			}(target)
		}
		wg.Wait()
	}
	return agg
}

func (m *Module) analyzeOne(ctx context.Context, job *ScanJob, t projectTarget, agg *aggregate) {
	result, err := m.analyzer.Analyze(ctx, t.Path, t.ID)
	if err != nil {
		m.logger.Warn("project analysis failed",
			zap.String("path", t.Path), zap.Error(err))
		job.addError(fmt.Sprintf("%s: %v", t.Path, err))
		return
	}

	if err := m.registry.RecordScan(ctx, t.ID, result.OverallScore); err != nil {
		m.logger.Warn("failed to record scan outcome",
			zap.String("project_id", t.ID), zap.Error(err))
	}
	if err := m.detector.Commit(ctx, t.Path); err != nil {
		m.logger.Debug("checksum commit failed",
			zap.String("path", t.Path), zap.Error(err))
	}

	agg.add(result)
	job.incProcessed()
}

// refreshRuntime triggers one runtime monitor cycle. Best-effort: the scan
// result records whether it succeeded, but a failure never fails the job.
func (m *Module) refreshRuntime(ctx context.Context) bool {
	if m.runtime == nil {
		return false
	}
	if err := m.runtime.Refresh(ctx); err != nil {
		m.logger.Warn("runtime refresh failed", zap.Error(err))
		return false
	}
	return true
}

// publishSummary emits the scan summary asynchronously; it never blocks job
// completion.
func (m *Module) publishSummary(ctx context.Context, summary ScanSummary) {
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicScanSummary,
		Source:    "orchestrator",
		Timestamp: time.Now().UTC(),
		Payload:   summary,
	})
}

// checkpoint observes cancellation and context expiry at phase boundaries.
func checkpoint(ctx context.Context, job *ScanJob) error {
	if job.cancelled() {
		return errCancelled
	}
	return ctx.Err()
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
