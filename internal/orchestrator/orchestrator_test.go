package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AveryNolan/devscope/internal/config"
	"github.com/AveryNolan/devscope/internal/event"
	"github.com/AveryNolan/devscope/internal/projects"
	"github.com/AveryNolan/devscope/internal/runtime"
	"github.com/AveryNolan/devscope/internal/store"
	"github.com/AveryNolan/devscope/pkg/plugin"
)

type stubDiscoverer struct {
	analyses []projects.ProjectAnalysis
	err      error
}

func (s *stubDiscoverer) DiscoverAndAnalyze(ctx context.Context, basePath string) ([]projects.ProjectAnalysis, error) {
	return s.analyses, s.err
}

func (s *stubDiscoverer) Save(ctx context.Context, a *projects.ProjectAnalysis) (string, error) {
	return "id-" + a.Name, nil
}

type stubAnalyzer struct {
	failPath string
	started  chan struct{}
	release  chan struct{}
	calls    atomic.Int32
}

func (s *stubAnalyzer) Analyze(ctx context.Context, projectPath, projectID string) (*projects.AnalysisResult, error) {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		<-s.release
	}
	s.calls.Add(1)
	if projectPath == s.failPath {
		return nil, errors.New("analysis exploded")
	}
	return &projects.AnalysisResult{
		ProjectID:      projectID,
		ProjectPath:    projectPath,
		SecurityIssues: 1,
		QualityIssues:  2,
		OverallScore:   80,
	}, nil
}

type stubRegistry struct {
	projects []projects.Project
}

func (s *stubRegistry) ListActive(ctx context.Context) ([]projects.Project, error) {
	return append([]projects.Project(nil), s.projects...), nil
}

func (s *stubRegistry) RecordScan(ctx context.Context, id string, score float64) error {
	return nil
}

type stubRuntime struct {
	refreshErr error
}

func (s *stubRuntime) Refresh(ctx context.Context) error { return s.refreshErr }

func (s *stubRuntime) Processes() []runtime.ProcessRecord {
	return make([]runtime.ProcessRecord, 2)
}

func (s *stubRuntime) Services() []runtime.ServiceRecord {
	return make([]runtime.ServiceRecord, 3)
}

func (s *stubRuntime) Containers() []runtime.ContainerRecord { return nil }

func newTestOrchestrator(t *testing.T, cfgFn func(v *viper.Viper),
	d ProjectDiscoverer, a ProjectAnalyzer, r ProjectRegistry) *Module {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	v := viper.New()
	if cfgFn != nil {
		cfgFn(v)
	}

	m := New()
	m.SetCollaborators(d, a, r)
	m.SetRuntimeMonitor(&stubRuntime{})

	deps := plugin.Dependencies{
		Config: config.New(v),
		Logger: zap.NewNop(),
		Store:  st,
		Bus:    event.NewBus(zap.NewNop()),
	}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("init: %v", err)
	}
	return m
}

func waitTerminal(t *testing.T, m *Module, jobID string) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.GetJobStatus(jobID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if snap.Status.terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return JobSnapshot{}
}

func trackedProjects(t *testing.T, n int) ([]projects.Project, []string) {
	t.Helper()
	var tracked []projects.Project
	var paths []string
	for i := 0; i < n; i++ {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		tracked = append(tracked, projects.Project{
			ID:   fmt.Sprintf("id-%d", i),
			Path: dir,
		})
		paths = append(paths, dir)
	}
	return tracked, paths
}

func TestIncrementalNoOp(t *testing.T) {
	tracked, paths := trackedProjects(t, 2)
	analyzer := &stubAnalyzer{}

	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, analyzer, &stubRegistry{projects: tracked})

	ctx := context.Background()
	for _, p := range paths {
		if err := m.detector.Commit(ctx, p); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	jobID, err := m.StartScan(ctx, ScanIncremental, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m, jobID)

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q, errors = %v", snap.Status, snap.Errors)
	}
	if snap.Progress != 100 {
		t.Errorf("progress = %f, want 100", snap.Progress)
	}
	results, ok := snap.Results.(IncrementalScanResults)
	if !ok {
		t.Fatalf("results type = %T", snap.Results)
	}
	if results.ChangedProjects != 0 {
		t.Errorf("changed_projects = %d, want 0", results.ChangedProjects)
	}
	if analyzer.calls.Load() != 0 {
		t.Errorf("analyzer called %d times for a no-op scan", analyzer.calls.Load())
	}
}

func TestIncrementalAnalyzesOnlyChanged(t *testing.T) {
	tracked, paths := trackedProjects(t, 3)
	analyzer := &stubAnalyzer{}

	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, analyzer, &stubRegistry{projects: tracked})

	ctx := context.Background()
	for _, p := range paths {
		if err := m.detector.Commit(ctx, p); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(paths[1], "go.mod"), future, future); err != nil {
		t.Fatal(err)
	}

	jobID, err := m.StartScan(ctx, ScanIncremental, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m, jobID)

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q, errors = %v", snap.Status, snap.Errors)
	}
	results := snap.Results.(IncrementalScanResults)
	if results.ChangedProjects != 1 || results.ProjectsAnalyzed != 1 {
		t.Errorf("changed=%d analyzed=%d, want 1/1", results.ChangedProjects, results.ProjectsAnalyzed)
	}
}

func TestPartialFailureCompletesJob(t *testing.T) {
	tracked, paths := trackedProjects(t, 5)
	analyzer := &stubAnalyzer{failPath: paths[2]}

	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, analyzer, &stubRegistry{projects: tracked})

	jobID, err := m.StartScan(context.Background(), ScanAnalysisOnly, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m, jobID)

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed despite one failure", snap.Status)
	}
	if len(snap.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly 1", snap.Errors)
	}
	if snap.ProcessedProjects != 4 {
		t.Errorf("processed = %d, want 4", snap.ProcessedProjects)
	}
	results := snap.Results.(AnalysisScanResults)
	if results.ProjectsAnalyzed != 4 {
		t.Errorf("analyzed = %d, want 4", results.ProjectsAnalyzed)
	}
}

func TestConcurrencyBound(t *testing.T) {
	tracked, _ := trackedProjects(t, 1)
	analyzer := &stubAnalyzer{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}

	m := newTestOrchestrator(t, func(v *viper.Viper) {
		v.Set("max_concurrent_jobs", 2)
	}, &stubDiscoverer{}, analyzer, &stubRegistry{projects: tracked})

	ctx := context.Background()
	first, err := m.StartScan(ctx, ScanAnalysisOnly, nil)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := m.StartScan(ctx, ScanAnalysisOnly, nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	// Both jobs must be blocked inside analysis before the bound is probed.
	<-analyzer.started
	<-analyzer.started

	if _, err := m.StartScan(ctx, ScanAnalysisOnly, nil); !errors.Is(err, ErrTooManyJobs) {
		t.Fatalf("third start err = %v, want ErrTooManyJobs", err)
	}

	close(analyzer.release)
	waitTerminal(t, m, first)
	waitTerminal(t, m, second)

	// Slots free up after completion.
	if _, err := m.StartScan(ctx, ScanAnalysisOnly, nil); err != nil {
		t.Fatalf("start after drain: %v", err)
	}
}

func TestCancelJob(t *testing.T) {
	tracked, _ := trackedProjects(t, 3)
	analyzer := &stubAnalyzer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}

	m := newTestOrchestrator(t, func(v *viper.Viper) {
		v.Set("max_projects_per_batch", 1)
	}, &stubDiscoverer{}, analyzer, &stubRegistry{projects: tracked})

	jobID, err := m.StartScan(context.Background(), ScanAnalysisOnly, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-analyzer.started
	if !m.CancelJob(jobID) {
		t.Fatal("cancel on a running job returned false")
	}
	close(analyzer.release)

	snap := waitTerminal(t, m, jobID)
	if snap.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled", snap.Status)
	}
	// The in-flight batch item finished; the remaining batches did not run.
	if got := analyzer.calls.Load(); got >= 3 {
		t.Errorf("analyzer ran %d times after cancellation, want < 3", got)
	}

	if m.CancelJob(jobID) {
		t.Error("cancel on a terminal job returned true")
	}
}

func TestRuntimeOnlyScan(t *testing.T) {
	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, &stubAnalyzer{}, &stubRegistry{})

	jobID, err := m.StartScan(context.Background(), ScanRuntimeOnly, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m, jobID)

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q, errors = %v", snap.Status, snap.Errors)
	}
	results := snap.Results.(RuntimeScanResults)
	if results.Processes != 2 || results.Services != 3 {
		t.Errorf("results = %+v, want 2 processes / 3 services", results)
	}
}

func TestFullScanAggregates(t *testing.T) {
	dirs := []string{t.TempDir(), t.TempDir()}
	discoverer := &stubDiscoverer{analyses: []projects.ProjectAnalysis{
		{Path: dirs[0], Name: "alpha", Technologies: []string{"go"}},
		{Path: dirs[1], Name: "beta", Technologies: []string{"node", "docker"}},
	}}

	m := newTestOrchestrator(t, nil, discoverer, &stubAnalyzer{}, &stubRegistry{})

	jobID, err := m.StartScan(context.Background(), ScanFull, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m, jobID)

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q, errors = %v", snap.Status, snap.Errors)
	}
	results := snap.Results.(FullScanResults)
	if results.ProjectsDiscovered != 2 || results.ProjectsAnalyzed != 2 {
		t.Errorf("discovered=%d analyzed=%d, want 2/2", results.ProjectsDiscovered, results.ProjectsAnalyzed)
	}
	if results.AverageScore != 80 {
		t.Errorf("average score = %f, want 80", results.AverageScore)
	}
	if len(results.Technologies) != 3 {
		t.Errorf("technologies = %v, want 3 entries", results.Technologies)
	}
	if !results.RuntimeRefreshed {
		t.Error("runtime refresh flag not set")
	}
}

func TestDiscoveryFailureFailsJob(t *testing.T) {
	discoverer := &stubDiscoverer{err: errors.New("permission denied at scan root")}
	m := newTestOrchestrator(t, nil, discoverer, &stubAnalyzer{}, &stubRegistry{})

	jobID, err := m.StartScan(context.Background(), ScanFull, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitTerminal(t, m, jobID)

	if snap.Status != StatusFailed {
		t.Fatalf("status = %q, want failed on a phase error", snap.Status)
	}
	if len(snap.Errors) == 0 {
		t.Fatal("failed job carries no error message")
	}
}

func TestStartScanRejectsWhenShuttingDown(t *testing.T) {
	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, &stubAnalyzer{}, &stubRegistry{})

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if _, err := m.StartScan(context.Background(), ScanFull, nil); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("err = %v, want ErrShuttingDown", err)
	}
}

func TestStartScanUnknownType(t *testing.T) {
	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, &stubAnalyzer{}, &stubRegistry{})
	if _, err := m.StartScan(context.Background(), ScanType("bogus"), nil); !errors.Is(err, ErrUnknownScan) {
		t.Fatalf("err = %v, want ErrUnknownScan", err)
	}
}

func TestGetJobStatusNotFound(t *testing.T) {
	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, &stubAnalyzer{}, &stubRegistry{})
	if _, err := m.GetJobStatus("no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
	if m.CancelJob("no-such-job") {
		t.Error("cancel of unknown job returned true")
	}
}

func TestStatusAggregates(t *testing.T) {
	tracked, _ := trackedProjects(t, 1)
	m := newTestOrchestrator(t, nil, &stubDiscoverer{}, &stubAnalyzer{}, &stubRegistry{projects: tracked})

	jobID, err := m.StartScan(context.Background(), ScanAnalysisOnly, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTerminal(t, m, jobID)

	// Wait for finishJob bookkeeping to land.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status().TotalScans == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := m.Status()
	if status.TotalScans != 1 || status.SuccessfulScans != 1 {
		t.Errorf("status = %+v, want 1 total / 1 successful", status)
	}
	if !status.Healthy {
		t.Error("idle orchestrator reported unhealthy")
	}
}
