package runtime

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProbeActiveAndInactive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewServiceScanner("127.0.0.1", 500*time.Millisecond, 4, 100, zap.NewNop())

	rec := s.probe(context.Background(), port)
	if rec.Status != "active" {
		t.Fatalf("listening port reported %q, want active", rec.Status)
	}
	if rec.LatencyMs < 0 {
		t.Errorf("latency = %f, want >= 0", rec.LatencyMs)
	}

	ln.Close()
	rec = s.probe(context.Background(), port)
	if rec.Status != "inactive" {
		t.Fatalf("closed port reported %q, want inactive", rec.Status)
	}
}

func TestScanAttributesOwningProcess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	port := ln.Addr().(*net.TCPAddr).Port

	s := NewServiceScanner("127.0.0.1", 500*time.Millisecond, 4, 200, zap.NewNop())
	known := []ProcessRecord{{
		PID:            4242,
		Name:           "node",
		ProjectID:      "id-foo",
		ListeningPorts: []int{port},
	}}

	records := s.Scan(context.Background(), known)

	var found *ServiceRecord
	for i := range records {
		if records[i].Port == port {
			found = &records[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("observed process port %d missing from scan results", port)
	}
	if found.Status != "active" {
		t.Errorf("status = %q, want active", found.Status)
	}
	if found.PID != 4242 || found.ProjectID != "id-foo" {
		t.Errorf("attribution = pid %d project %q, want 4242/id-foo", found.PID, found.ProjectID)
	}
	if found.Name != "node" {
		t.Errorf("name = %q, want node", found.Name)
	}
}

func TestScanResultsSortedByPort(t *testing.T) {
	s := NewServiceScanner("127.0.0.1", 50*time.Millisecond, 8, 500, zap.NewNop())
	records := s.Scan(context.Background(), nil)
	for i := 1; i < len(records); i++ {
		if records[i-1].Port > records[i].Port {
			t.Fatalf("results not sorted: %d before %d", records[i-1].Port, records[i].Port)
		}
	}
}
