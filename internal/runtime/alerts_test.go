package runtime

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestAlertEngine(t *testing.T) (*AlertEngine, *time.Time) {
	t.Helper()
	e := NewAlertEngine(DefaultConfig(), zap.NewNop())
	now := time.Now()
	e.nowFunc = func() time.Time { return now }
	return e, &now
}

func TestCheckSampleThresholds(t *testing.T) {
	e, _ := newTestAlertEngine(t)

	sample := MetricsSample{
		Timestamp:     time.Now(),
		CPUPercent:    95, // above critical 90
		MemoryPercent: 80, // above warning 75
		DiskPercent:   50, // below warning
	}
	alerts := e.CheckSample(sample)
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}

	bySeverity := map[string]string{}
	for _, a := range alerts {
		bySeverity[a.AlertType] = a.Severity
	}
	if bySeverity[AlertHighCPU] != SeverityCritical {
		t.Errorf("cpu severity = %q, want critical", bySeverity[AlertHighCPU])
	}
	if bySeverity[AlertHighMemory] != SeverityHigh {
		t.Errorf("memory severity = %q, want high", bySeverity[AlertHighMemory])
	}
}

func TestAlertCooldownDeduplication(t *testing.T) {
	e, now := newTestAlertEngine(t)

	sample := MetricsSample{Timestamp: *now, CPUPercent: 95}

	if got := len(e.CheckSample(sample)); got != 1 {
		t.Fatalf("first breach: got %d alerts, want 1", got)
	}
	// Same breach inside the cooldown window is suppressed.
	*now = now.Add(time.Minute)
	if got := len(e.CheckSample(sample)); got != 0 {
		t.Fatalf("breach within cooldown: got %d alerts, want 0", got)
	}
	// After the window it fires again.
	*now = now.Add(DefaultConfig().AlertCooldown)
	if got := len(e.CheckSample(sample)); got != 1 {
		t.Fatalf("breach after cooldown: got %d alerts, want 1", got)
	}
}

func TestAlertCooldownScopedByProcess(t *testing.T) {
	e, _ := newTestAlertEngine(t)

	a := ProcessRecord{PID: 100, Name: "node", CPUPercent: 85}
	b := ProcessRecord{PID: 200, Name: "python", CPUPercent: 85}

	if got := len(e.CheckProcess(a)); got != 1 {
		t.Fatalf("pid 100: got %d alerts, want 1", got)
	}
	// Different scope, same alert type: not suppressed.
	if got := len(e.CheckProcess(b)); got != 1 {
		t.Fatalf("pid 200: got %d alerts, want 1", got)
	}
	// Same scope again: suppressed.
	if got := len(e.CheckProcess(a)); got != 0 {
		t.Fatalf("pid 100 repeat: got %d alerts, want 0", got)
	}
}

func TestCheckLeak(t *testing.T) {
	e, _ := newTestAlertEngine(t)
	rec := ProcessRecord{PID: 42, Name: "node"}

	// 2 MiB growth per 30s sample extrapolates to 4 MiB/min, above the floor.
	history := make([]float64, 10)
	for i := range history {
		history[i] = float64(i) * 2 * (1 << 20)
	}
	alert := e.CheckLeak(rec, history, 30*time.Second)
	if alert == nil {
		t.Fatal("expected a leak alert for steadily growing rss")
	}
	if alert.AlertType != AlertPotentialMemLeak || alert.Severity != SeverityHigh {
		t.Errorf("got type=%q severity=%q", alert.AlertType, alert.Severity)
	}

	// Flat rss: no alert.
	flat := []float64{100, 100, 100, 100, 100, 100}
	if a := e.CheckLeak(ProcessRecord{PID: 43}, flat, 30*time.Second); a != nil {
		t.Errorf("flat rss produced alert %+v", a)
	}

	// Growth below the bytes/min floor: no alert.
	slow := make([]float64, 10)
	for i := range slow {
		slow[i] = float64(i) * 1024 // 1 KiB per sample
	}
	if a := e.CheckLeak(ProcessRecord{PID: 44}, slow, 30*time.Second); a != nil {
		t.Errorf("slow growth produced alert %+v", a)
	}
}
