package runtime

import "time"

// Thresholds holds the warning/critical comparison levels for one metric.
type Thresholds struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// RuntimeConfig configures the runtime monitor module.
type RuntimeConfig struct {
	MonitorInterval  time.Duration `mapstructure:"monitor_interval"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
	ProbeConcurrency int           `mapstructure:"probe_concurrency"`
	ProbesPerSecond  int           `mapstructure:"probes_per_second"`
	HistorySize      int           `mapstructure:"history_size"`
	AlertCooldown    time.Duration `mapstructure:"alert_cooldown"`
	DockerSocket     string        `mapstructure:"docker_socket"`

	CPU            Thresholds `mapstructure:"cpu"`
	Memory         Thresholds `mapstructure:"memory"`
	Disk           Thresholds `mapstructure:"disk"`
	ProcessCPU     Thresholds `mapstructure:"process_cpu"`
	ProcessMemory  Thresholds `mapstructure:"process_memory"`
	Connections    Thresholds `mapstructure:"connections"`

	// LeakMinBytesPerMinute is the extrapolated RSS growth floor below which
	// an increasing memory trend is not reported as a potential leak.
	LeakMinBytesPerMinute float64 `mapstructure:"leak_min_bytes_per_minute"`
}

// DefaultConfig returns the runtime monitor defaults.
func DefaultConfig() RuntimeConfig {
	return RuntimeConfig{
		MonitorInterval:  30 * time.Second,
		ProbeTimeout:     500 * time.Millisecond,
		ProbeConcurrency: 16,
		ProbesPerSecond:  100,
		HistorySize:      120,
		AlertCooldown:    5 * time.Minute,
		DockerSocket:     "/var/run/docker.sock",

		CPU:           Thresholds{Warning: 70, Critical: 90},
		Memory:        Thresholds{Warning: 75, Critical: 90},
		Disk:          Thresholds{Warning: 80, Critical: 95},
		ProcessCPU:    Thresholds{Warning: 50, Critical: 80},
		ProcessMemory: Thresholds{Warning: 20, Critical: 40},
		Connections:   Thresholds{Warning: 1000, Critical: 5000},

		LeakMinBytesPerMinute: 1 << 20, // 1 MiB/min
	}
}
