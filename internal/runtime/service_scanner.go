package runtime

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// commonDevPorts maps well-known development server ports to service names.
var commonDevPorts = map[int]string{
	3000: "node-dev", 3001: "node-dev-alt", 4200: "angular",
	5000: "flask", 5173: "vite", 8000: "django",
	8080: "http-alt", 8081: "http-alt-2", 8888: "jupyter",
	9000: "php-fpm", 9090: "prometheus",
}

// infraPorts maps common infrastructure defaults to service names.
var infraPorts = map[int]string{
	5432: "postgres", 3306: "mysql", 6379: "redis",
	27017: "mongodb", 9200: "elasticsearch", 5672: "rabbitmq",
	9092: "kafka", 11211: "memcached", 2181: "zookeeper",
}

// ServiceScanner probes candidate TCP ports on the local host for liveness
// and response latency.
type ServiceScanner struct {
	host        string
	timeout     time.Duration
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewServiceScanner creates a scanner probing the given host (default
// localhost). Probe fan-out is bounded by a semaphore of width concurrency
// and a rate limiter of probesPerSecond.
func NewServiceScanner(host string, timeout time.Duration, concurrency, probesPerSecond int, logger *zap.Logger) *ServiceScanner {
	if host == "" {
		host = "127.0.0.1"
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 16
	}
	if probesPerSecond <= 0 {
		probesPerSecond = 100
	}
	return &ServiceScanner{
		host:        host,
		timeout:     timeout,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(rate.Limit(probesPerSecond), probesPerSecond),
		logger:      logger,
	}
}

// Scan probes the candidate port set built from the common dev-port table,
// ports observed on known processes, and common infra defaults. Services are
// attributed to a known process (and its project) when one is listening on
// the probed port.
func (s *ServiceScanner) Scan(ctx context.Context, known []ProcessRecord) []ServiceRecord {
	portOwner := make(map[int]*ProcessRecord)
	for i := range known {
		for _, port := range known[i].ListeningPorts {
			if _, taken := portOwner[port]; !taken {
				portOwner[port] = &known[i]
			}
		}
	}

	candidates := s.candidatePorts(portOwner)

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	results := make([]ServiceRecord, 0, len(candidates))

	for _, port := range candidates {
		if ctx.Err() != nil {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(p int) {
			defer wg.Done()
			defer func() { <-sem }()

			rec := s.probe(ctx, p)
			if owner := portOwner[p]; owner != nil {
				rec.PID = owner.PID
				rec.ProjectID = owner.ProjectID
				rec.ProjectPath = owner.ProjectPath
				if rec.Name == "" {
					rec.Name = owner.Name
				}
			}
			if rec.Name == "" {
				rec.Name = "tcp-" + strconv.Itoa(p)
			}

			mu.Lock()
			results = append(results, rec)
			mu.Unlock()
		}(port)
	}
	wg.Wait()

	// Sort for deterministic output.
	sort.Slice(results, func(i, j int) bool { return results[i].Port < results[j].Port })

	active := 0
	for i := range results {
		if results[i].Status == "active" {
			active++
		}
	}
	s.logger.Debug("service scan complete",
		zap.Int("probed", len(results)),
		zap.Int("active", active),
	)
	return results
}

// candidatePorts merges the static dev-port table, observed process ports,
// and infra defaults into a sorted, de-duplicated probe list.
func (s *ServiceScanner) candidatePorts(portOwner map[int]*ProcessRecord) []int {
	seen := make(map[int]bool)
	var ports []int
	add := func(p int) {
		if !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	for p := range commonDevPorts {
		add(p)
	}
	for p := range portOwner {
		add(p)
	}
	for p := range infraPorts {
		add(p)
	}
	sort.Ints(ports)
	return ports
}

// probe attempts a TCP connection to the port and measures connect latency.
// Connection failures are the normal "inactive" outcome, never an error.
func (s *ServiceScanner) probe(ctx context.Context, port int) ServiceRecord {
	rec := ServiceRecord{
		Host:      s.host,
		Port:      port,
		Protocol:  "tcp",
		Status:    "inactive",
		CheckedAt: time.Now().UTC(),
	}
	if name, ok := commonDevPorts[port]; ok {
		rec.Name = name
	} else if name, ok := infraPorts[port]; ok {
		rec.Name = name
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(port))
	d := net.Dialer{Timeout: s.timeout}

	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		return rec
	}
	conn.Close()

	rec.Status = "active"
	rec.LatencyMs = float64(elapsed) / float64(time.Millisecond)
	return rec
}
