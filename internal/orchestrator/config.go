package orchestrator

import (
	"os"
	"time"
)

// OrchestratorConfig configures the scan orchestrator module.
type OrchestratorConfig struct {
	// BasePath is the root under which project discovery walks.
	BasePath string `mapstructure:"base_path"`

	MaxConcurrentJobs   int           `mapstructure:"max_concurrent_jobs"`
	MaxProjectsPerBatch int           `mapstructure:"max_projects_per_batch"`
	JobTimeout          time.Duration `mapstructure:"job_timeout"`

	ScheduleInterval    time.Duration `mapstructure:"schedule_interval"`
	IncrementalInterval time.Duration `mapstructure:"incremental_interval"`
	FullInterval        time.Duration `mapstructure:"full_interval"`
}

// DefaultConfig returns the orchestrator defaults. BasePath falls back to
// the user's home directory when unset.
func DefaultConfig() OrchestratorConfig {
	base, err := os.UserHomeDir()
	if err != nil {
		base = "."
	}
	return OrchestratorConfig{
		BasePath:            base,
		MaxConcurrentJobs:   3,
		MaxProjectsPerBatch: 5,
		JobTimeout:          30 * time.Minute,
		ScheduleInterval:    10 * time.Minute,
		IncrementalInterval: 30 * time.Minute,
		FullInterval:        6 * time.Hour,
	}
}
