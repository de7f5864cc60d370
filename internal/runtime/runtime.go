// Package runtime implements the runtime monitor module: periodic discovery
// of development-relevant processes, services, and containers, system metrics
// sampling, trend analysis, and threshold alerting.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/AveryNolan/devscope/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin         = (*Module)(nil)
	_ plugin.HealthReporter = (*Module)(nil)
)

// ProjectSource supplies the tracked project path-to-ID mapping used for
// association. Wired at the composition root.
type ProjectSource interface {
	Mappings(ctx context.Context) (map[string]string, error)
}

// pruneEveryCycles controls how often retention pruning runs.
const pruneEveryCycles = 100

// Module implements the runtime monitor plugin.
type Module struct {
	logger *zap.Logger
	bus    plugin.EventBus
	cfg    RuntimeConfig

	projects   ProjectSource
	registerer prometheus.Registerer

	associator *Associator
	collector  *Collector
	procScan   *ProcessScanner
	svcScan    *ServiceScanner
	ctrScan    ContainerScanner
	history    *History
	alerter    *AlertEngine
	status     *statusStore
	metrics    *monitorMetrics

	mu         sync.RWMutex
	processes  []ProcessRecord
	services   []ServiceRecord
	containers []ContainerRecord
	lastSample MetricsSample
	lastCycle  time.Time
	cycleCount uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new runtime monitor module instance.
func New() *Module {
	return &Module{stopCh: make(chan struct{})}
}

// SetProjectSource wires the tracked-project mapping provider.
// Must be called before Start.
func (m *Module) SetProjectSource(src ProjectSource) {
	m.projects = src
}

// SetMetricsRegisterer wires the Prometheus registry. Optional; without it
// monitor metrics are collected but not exported.
func (m *Module) SetMetricsRegisterer(reg prometheus.Registerer) {
	m.registerer = reg
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "runtime",
		Version:      "0.1.0",
		Description:  "Process, service, and container monitoring with alerting",
		Dependencies: []string{"projects"},
		Roles:        []string{"monitoring"},
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

	if err := deps.Store.Migrate(ctx, "runtime", migrations()); err != nil {
		return err
	}

	m.associator = NewAssociator()
	m.collector = NewCollector("", m.logger.Named("collector"))
	m.procScan = NewProcessScanner(m.associator, m.logger.Named("processes"))
	m.svcScan = NewServiceScanner("", m.cfg.ProbeTimeout, m.cfg.ProbeConcurrency,
		m.cfg.ProbesPerSecond, m.logger.Named("services"))
	m.ctrScan = NewContainerScanner(m.cfg.DockerSocket, m.logger.Named("containers"))
	m.history = NewHistory(m.cfg.HistorySize)
	m.alerter = NewAlertEngine(m.cfg, m.logger.Named("alerts"))
	m.status = newStatusStore(deps.Store.DB(), m.logger.Named("store"))
	m.metrics = newMonitorMetrics(m.registerer)

	m.logger.Info("runtime monitor initialized",
		zap.Duration("interval", m.cfg.MonitorInterval))
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.wg.Add(1)
	go m.run()
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
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

// Health reports degraded when the monitor loop has not completed a cycle
// within two intervals.
func (m *Module) Health() plugin.HealthStatus {
	m.mu.RLock()
	last := m.lastCycle
	m.mu.RUnlock()

	if last.IsZero() {
		return plugin.HealthStatus{Status: "degraded", Message: "no monitor cycle completed yet"}
	}
	if time.Since(last) > 2*m.cfg.MonitorInterval {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "monitor cycle overdue",
			Details: map[string]string{"last_cycle": last.Format(time.RFC3339)},
		}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

func (m *Module) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	// First cycle immediately so state is available before the first tick.
	m.cycle()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cycle()
		}
	}
}

// Refresh runs one monitor cycle on demand. Used by the scan orchestrator
// for runtime phases; safe to call concurrently with the ticker loop.
func (m *Module) Refresh(ctx context.Context) error {
	return m.scan(ctx)
}

func (m *Module) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.MonitorInterval)
	defer cancel()

	if err := m.scan(ctx); err != nil {
		m.logger.Warn("monitor cycle failed", zap.Error(err))
	}
}

// scan performs one full monitor pass: refresh associations, sample system
// metrics, enumerate processes/services/containers, run alert checks, and
// publish the snapshot.
func (m *Module) scan(ctx context.Context) error {
	start := time.Now()

	m.refreshAssociations(ctx)

	sample := m.collector.Collect(ctx)
	m.history.Record(sample)
	m.status.SaveSample(ctx, sample)

	procs, err := m.procScan.Scan(ctx)
	if err != nil {
		return err
	}
	m.history.RecordProcesses(procs)
	m.status.SaveProcesses(ctx, sample.Timestamp, procs)

	services := m.svcScan.Scan(ctx, procs)

	containers, err := m.ctrScan.Scan(ctx)
	if err != nil {
		m.logger.Warn("container scan failed", zap.Error(err))
	}

	alerts := m.evaluateAlerts(ctx, sample, procs)

	m.publishSnapshot(ctx, sample, procs, services, containers, alerts)

	m.mu.Lock()
	m.processes = procs
	m.services = services
	m.containers = containers
	m.lastSample = sample
	m.lastCycle = time.Now()
	m.cycleCount++
	count := m.cycleCount
	m.mu.Unlock()

	m.updateMetrics(sample, procs, services, containers)

	if count%pruneEveryCycles == 0 {
		m.status.Prune(ctx)
	}

	m.logger.Debug("monitor cycle complete",
		zap.Int("processes", len(procs)),
		zap.Int("services", len(services)),
		zap.Int("containers", len(containers)),
		zap.Int("alerts", len(alerts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (m *Module) refreshAssociations(ctx context.Context) {
	if m.projects == nil {
		return
	}
	mapping, err := m.projects.Mappings(ctx)
	if err != nil {
		m.logger.Warn("project mapping refresh failed", zap.Error(err))
		return
	}
	m.associator.Update(mapping)
}

func (m *Module) evaluateAlerts(ctx context.Context, sample MetricsSample, procs []ProcessRecord) []Alert {
	alerts := m.alerter.CheckSample(sample)

	for i := range procs {
		alerts = append(alerts, m.alerter.CheckProcess(procs[i])...)
		if leak := m.alerter.CheckLeak(procs[i], m.history.RSS(procs[i].PID), m.cfg.MonitorInterval); leak != nil {
			alerts = append(alerts, *leak)
		}
	}

	for i := range alerts {
		m.status.SaveAlert(ctx, alerts[i])
		m.metrics.alerts.WithLabelValues(alerts[i].AlertType, alerts[i].Severity).Inc()
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:     TopicAlertTriggered,
			Source:    "runtime",
			Timestamp: time.Now().UTC(),
			Payload:   alerts[i],
		})
	}
	return alerts
}

func (m *Module) publishSnapshot(ctx context.Context, sample MetricsSample,
	procs []ProcessRecord, services []ServiceRecord, containers []ContainerRecord, alerts []Alert) {

	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicMetricsCollected,
		Source:    "runtime",
		Timestamp: time.Now().UTC(),
		Payload:   sample,
	})
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicScanCompleted,
		Source:    "runtime",
		Timestamp: time.Now().UTC(),
		Payload: ScanCompletedEvent{
			Processes:  len(procs),
			Services:   len(services),
			Containers: len(containers),
		},
	})
}

func (m *Module) updateMetrics(sample MetricsSample,
	procs []ProcessRecord, services []ServiceRecord, containers []ContainerRecord) {

	m.metrics.cpuPercent.Set(sample.CPUPercent)
	m.metrics.memoryPercent.Set(sample.MemoryPercent)
	m.metrics.diskPercent.Set(sample.DiskPercent)
	m.metrics.processes.Set(float64(len(procs)))

	active := 0
	for i := range services {
		if services[i].Status == "active" {
			active++
		}
	}
	m.metrics.services.Set(float64(active))
	m.metrics.containers.Set(float64(len(containers)))
	m.metrics.cycles.Inc()
}

// Processes returns a copy of the latest process snapshot.
func (m *Module) Processes() []ProcessRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProcessRecord, len(m.processes))
	copy(out, m.processes)
	return out
}

// Services returns a copy of the latest service snapshot.
func (m *Module) Services() []ServiceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServiceRecord, len(m.services))
	copy(out, m.services)
	return out
}

// Containers returns a copy of the latest container snapshot.
func (m *Module) Containers() []ContainerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ContainerRecord, len(m.containers))
	copy(out, m.containers)
	return out
}

// LatestSample returns the most recent system metrics sample.
func (m *Module) LatestSample() MetricsSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSample
}

// Trends analyzes the recorded system metric series.
func (m *Module) Trends() []Trend {
	analyzer := NewTrendAnalyzer()
	return []Trend{
		analyzer.Analyze(m.history.CPU(), "cpu_percent"),
		analyzer.Analyze(m.history.Memory(), "memory_percent"),
		analyzer.Analyze(m.history.Disk(), "disk_percent"),
	}
}

// RecentAlerts lists recently persisted alerts, newest first.
func (m *Module) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	return m.status.RecentAlerts(ctx, limit)
}
