package runtime

import "github.com/prometheus/client_golang/prometheus"

// monitorMetrics exports monitor state to Prometheus.
type monitorMetrics struct {
	cpuPercent    prometheus.Gauge
	memoryPercent prometheus.Gauge
	diskPercent   prometheus.Gauge
	processes     prometheus.Gauge
	services      prometheus.Gauge
	containers    prometheus.Gauge
	cycles        prometheus.Counter
	alerts        *prometheus.CounterVec
}

func newMonitorMetrics(reg prometheus.Registerer) *monitorMetrics {
	m := &monitorMetrics{
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "cpu_percent", Help: "System CPU utilization percent.",
		}),
		memoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "memory_percent", Help: "System memory utilization percent.",
		}),
		diskPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "disk_percent", Help: "Root volume disk utilization percent.",
		}),
		processes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "dev_processes", Help: "Development-relevant processes in the latest scan.",
		}),
		services: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "active_services", Help: "TCP services responding in the latest scan.",
		}),
		containers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "containers", Help: "Containers reported by the engine in the latest scan.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "monitor_cycles_total", Help: "Completed monitor cycles.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devscope", Subsystem: "runtime",
			Name: "alerts_total", Help: "Alerts emitted, by type and severity.",
		}, []string{"alert_type", "severity"}),
	}
	if reg != nil {
		reg.MustRegister(m.cpuPercent, m.memoryPercent, m.diskPercent,
			m.processes, m.services, m.containers, m.cycles, m.alerts)
	}
	return m
}
