package runtime

import "sync"

// History keeps bounded time series of recent system metrics and per-process
// RSS, feeding the trend analyzer. All methods are safe for concurrent use.
type History struct {
	mu   sync.RWMutex
	size int

	cpu    []float64
	memory []float64
	disk   []float64

	rssByPID map[int32][]float64
}

// NewHistory creates history buffers holding at most size points per series.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 120
	}
	return &History{
		size:     size,
		rssByPID: make(map[int32][]float64),
	}
}

// Record appends one system sample to the metric series.
func (h *History) Record(sample MetricsSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cpu = appendBounded(h.cpu, sample.CPUPercent, h.size)
	h.memory = appendBounded(h.memory, sample.MemoryPercent, h.size)
	h.disk = appendBounded(h.disk, sample.DiskPercent, h.size)
}

// RecordProcesses appends each process's RSS to its series and drops series
// for PIDs no longer present. A reused PID starts a fresh series only after
// the old process has been absent from a scan.
func (h *History) RecordProcesses(records []ProcessRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[int32]bool, len(records))
	for i := range records {
		pid := records[i].PID
		seen[pid] = true
		h.rssByPID[pid] = appendBounded(h.rssByPID[pid], float64(records[i].MemoryRSS), h.size)
	}
	for pid := range h.rssByPID {
		if !seen[pid] {
			delete(h.rssByPID, pid)
		}
	}
}

// CPU returns a copy of the CPU percent series.
func (h *History) CPU() []float64 { return h.copySeries(&h.cpu) }

// Memory returns a copy of the memory percent series.
func (h *History) Memory() []float64 { return h.copySeries(&h.memory) }

// Disk returns a copy of the disk percent series.
func (h *History) Disk() []float64 { return h.copySeries(&h.disk) }

// RSS returns a copy of the RSS series for one PID, nil if untracked.
func (h *History) RSS(pid int32) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	series := h.rssByPID[pid]
	if series == nil {
		return nil
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out
}

func (h *History) copySeries(series *[]float64) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]float64, len(*series))
	copy(out, *series)
	return out
}

// appendBounded appends v and trims the series to at most size points,
// discarding the oldest.
func appendBounded(series []float64, v float64, size int) []float64 {
	series = append(series, v)
	if len(series) > size {
		series = series[len(series)-size:]
	}
	return series
}
