package runtime

import "time"

// Alert severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert types emitted by the alert engine.
const (
	AlertHighCPU           = "high_cpu"
	AlertHighMemory        = "high_memory"
	AlertHighDisk          = "high_disk"
	AlertHighConnections   = "high_connections"
	AlertProcessCPU        = "process_cpu"
	AlertProcessMemory     = "process_memory"
	AlertPotentialMemLeak  = "potential_memory_leak"
)

// ProcessRecord is an ephemeral snapshot of one development-relevant process.
// Records are recreated on every scan cycle; identity across cycles exists
// only via PID.
type ProcessRecord struct {
	PID            int32     `json:"pid"`
	Name           string    `json:"name"`
	Cmdline        []string  `json:"cmdline"`
	WorkingDir     string    `json:"working_dir"`
	Status         string    `json:"status"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryRSS      uint64    `json:"memory_rss"`
	CreatedAt      time.Time `json:"created_at"`
	ListeningPorts []int     `json:"listening_ports"`
	ProjectID      string    `json:"project_id,omitempty"`
	ProjectPath    string    `json:"project_path,omitempty"`
}

// ServiceRecord is the probe result for one candidate service port.
// Recomputed on every service scan.
type ServiceRecord struct {
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Protocol    string    `json:"protocol"`
	Status      string    `json:"status"` // "active" or "inactive"
	PID         int32     `json:"pid,omitempty"`
	LatencyMs   float64   `json:"latency_ms"`
	CheckedAt   time.Time `json:"checked_at"`
	ProjectID   string    `json:"project_id,omitempty"`
	ProjectPath string    `json:"project_path,omitempty"`
}

// ContainerRecord describes one container reported by the engine.
// Only populated when a container engine is reachable.
type ContainerRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Status      string            `json:"status"`
	Ports       []PortMapping     `json:"ports"`
	Labels      map[string]string `json:"labels"`
	CreatedAt   time.Time         `json:"created_at"`
	ProjectPath string            `json:"project_path,omitempty"`
}

// PortMapping is a container port binding.
type PortMapping struct {
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol"`
}

// MetricsSample is one best-effort read of system-wide resource metrics.
// Immutable once created; fields that could not be sampled are zero.
type MetricsSample struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryPercent     float64   `json:"memory_percent"`
	DiskPercent       float64   `json:"disk_percent"`
	NetBytesSent      uint64    `json:"net_bytes_sent"`
	NetBytesRecv      uint64    `json:"net_bytes_recv"`
	Load1             float64   `json:"load_1"`
	Load5             float64   `json:"load_5"`
	Load15            float64   `json:"load_15"`
	ProcessCount      int       `json:"process_count"`
	ActiveConnections int       `json:"active_connections"`
}

// Alert is a threshold or trend finding emitted by the alert engine.
type Alert struct {
	ProjectID         string         `json:"project_id,omitempty"`
	AlertType         string         `json:"alert_type"`
	Severity          string         `json:"severity"`
	Message           string         `json:"message"`
	Details           map[string]any `json:"details,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	ThresholdExceeded float64        `json:"threshold_exceeded"`
	CurrentValue      float64        `json:"current_value"`
}

// Trend is the result of fitting a linear trend to a metric time series.
type Trend struct {
	Metric      string  `json:"metric"`
	Significant bool    `json:"significant"`
	Direction   string  `json:"direction"` // "increasing" or "decreasing"
	Slope       float64 `json:"slope"`
	Confidence  float64 `json:"confidence"` // Pearson correlation with time
	Severity    string  `json:"severity"`
}
