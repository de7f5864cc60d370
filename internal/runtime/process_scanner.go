package runtime

import (
	"context"
	"strings"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// skipNames are well-known system processes never considered dev-relevant.
var skipNames = map[string]bool{
	"kthreadd": true, "ksoftirqd": true, "migration": true, "rcu_sched": true,
	"systemd": true, "systemd-journald": true, "systemd-logind": true,
	"systemd-udevd": true, "systemd-resolved": true, "dbus-daemon": true,
	"cron": true, "crond": true, "sshd": true, "agetty": true, "init": true,
	"launchd": true, "kernel_task": true, "WindowServer": true,
}

// skipPathPrefixes exclude OS-owned executables by location.
var skipPathPrefixes = []string{
	"/usr/libexec/",
	"/System/",
	"/usr/lib/systemd/",
	"/lib/systemd/",
}

// devPatterns match process names or command lines per language/tool family.
var devPatterns = []string{
	"go", "gopls", "dlv",
	"node", "npm", "npx", "yarn", "pnpm", "deno", "bun", "tsc", "vite", "webpack",
	"python", "python3", "uvicorn", "gunicorn", "flask", "django", "pytest", "pip",
	"cargo", "rustc", "rust-analyzer",
	"java", "gradle", "mvn", "kotlin",
	"ruby", "rails", "bundle",
	"php", "composer", "artisan",
	"dotnet", "msbuild",
	"docker", "docker-compose", "podman", "kubectl", "minikube", "tilt", "skaffold",
	"postgres", "mysqld", "redis-server", "mongod", "elasticsearch",
	"make", "cmake", "ninja", "bazel",
	"git", "code", "nvim", "vim", "emacs",
	"jest", "mocha", "eslint", "prettier",
}

// devKeywords are generic development indicators in command lines.
var devKeywords = []string{"serve", "watch", "hot-reload", "hot_reload", "dev-server", "devserver", "--dev", "run dev", "nodemon", "livereload"}

// ProcessScanner enumerates OS processes and filters to development-relevant
// ones, resolving listening ports and project association for each.
type ProcessScanner struct {
	associator *Associator
	logger     *zap.Logger
}

// NewProcessScanner creates a process scanner using the given associator.
func NewProcessScanner(associator *Associator, logger *zap.Logger) *ProcessScanner {
	return &ProcessScanner{associator: associator, logger: logger}
}

// Scan enumerates all OS processes and returns records for the
// development-relevant subset. Individual processes that vanish mid-scan or
// deny access are skipped silently; that is routine churn, not failure.
func (s *ProcessScanner) Scan(ctx context.Context) ([]ProcessRecord, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	listeners := listeningPortsByPID(ctx)

	records := make([]ProcessRecord, 0, 64)
	for _, p := range procs {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}

		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		cmdline, _ := p.CmdlineSliceWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)

		if isSystemProcess(name, exe) {
			continue
		}
		if !isDevRelevant(name, strings.Join(cmdline, " ")) {
			continue
		}

		rec := ProcessRecord{
			PID:     p.Pid,
			Name:    name,
			Cmdline: cmdline,
		}

		if cwd, err := p.CwdWithContext(ctx); err == nil {
			rec.WorkingDir = cwd
		}
		if statuses, err := p.StatusWithContext(ctx); err == nil && len(statuses) > 0 {
			rec.Status = statuses[0]
		}
		if cpuPct, err := p.CPUPercentWithContext(ctx); err == nil {
			rec.CPUPercent = cpuPct
		}
		if memPct, err := p.MemoryPercentWithContext(ctx); err == nil {
			rec.MemoryPercent = float64(memPct)
		}
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
			rec.MemoryRSS = memInfo.RSS
		}
		if created, err := p.CreateTimeWithContext(ctx); err == nil {
			rec.CreatedAt = time.UnixMilli(created).UTC()
		}
		rec.ListeningPorts = listeners[p.Pid]

		if id, path, ok := s.associator.Associate(rec.WorkingDir, strings.Join(cmdline, " ")); ok {
			rec.ProjectID = id
			rec.ProjectPath = path
		}

		records = append(records, rec)
	}

	s.logger.Debug("process scan complete",
		zap.Int("total", len(procs)),
		zap.Int("dev_relevant", len(records)),
	)
	return records, nil
}

// listeningPortsByPID reads the OS socket table once and indexes LISTEN
// sockets by owning PID. A read failure yields an empty map; port data is
// enrichment, not a hard requirement.
func listeningPortsByPID(ctx context.Context) map[int32][]int {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return map[int32][]int{}
	}
	result := make(map[int32][]int)
	for i := range conns {
		if conns[i].Status != "LISTEN" || conns[i].Pid == 0 {
			continue
		}
		result[conns[i].Pid] = append(result[conns[i].Pid], int(conns[i].Laddr.Port))
	}
	return result
}

func isSystemProcess(name, exe string) bool {
	if skipNames[name] {
		return true
	}
	// Kernel threads show up bracketed on Linux.
	if strings.HasPrefix(name, "[") {
		return true
	}
	for _, prefix := range skipPathPrefixes {
		if exe != "" && strings.HasPrefix(exe, prefix) {
			return true
		}
	}
	return false
}

func isDevRelevant(name, cmdline string) bool {
	lowerName := strings.ToLower(name)
	for _, p := range devPatterns {
		if lowerName == p || strings.HasPrefix(lowerName, p+" ") {
			return true
		}
	}
	lowerCmd := strings.ToLower(cmdline)
	for _, kw := range devKeywords {
		if strings.Contains(lowerCmd, kw) {
			return true
		}
	}
	return false
}
