package runtime

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// Collector samples system-wide resource metrics.
type Collector struct {
	diskPath string
	logger   *zap.Logger
}

// NewCollector creates a collector that reports disk usage for diskPath
// (the root volume by default).
func NewCollector(diskPath string, logger *zap.Logger) *Collector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Collector{diskPath: diskPath, logger: logger}
}

// Collect performs one best-effort metrics read. Individual sampling
// failures leave the corresponding fields zero and are logged at debug
// level; the sample itself is always returned so that alerting degrades
// instead of monitoring aborting.
func (c *Collector) Collect(ctx context.Context) MetricsSample {
	sample := MetricsSample{Timestamp: time.Now().UTC()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	} else if err != nil {
		c.logger.Debug("cpu sample failed", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.MemoryPercent = vm.UsedPercent
	} else {
		c.logger.Debug("memory sample failed", zap.Error(err))
	}

	if usage, err := disk.UsageWithContext(ctx, c.diskPath); err == nil {
		sample.DiskPercent = usage.UsedPercent
	} else {
		c.logger.Debug("disk sample failed", zap.Error(err))
	}

	if counters, err := gnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		sample.NetBytesSent = counters[0].BytesSent
		sample.NetBytesRecv = counters[0].BytesRecv
	} else if err != nil {
		c.logger.Debug("network counters failed", zap.Error(err))
	}

	// Load averages are platform-optional; unsupported platforms report zeros.
	if avg, err := load.AvgWithContext(ctx); err == nil {
		sample.Load1 = avg.Load1
		sample.Load5 = avg.Load5
		sample.Load15 = avg.Load15
	}

	if conns, err := gnet.ConnectionsWithContext(ctx, "tcp"); err == nil {
		for i := range conns {
			if conns[i].Status == "ESTABLISHED" {
				sample.ActiveConnections++
			}
		}
	} else {
		c.logger.Debug("connection count failed", zap.Error(err))
	}

	if pids, err := process.PidsWithContext(ctx); err == nil {
		sample.ProcessCount = len(pids)
	}

	return sample
}
