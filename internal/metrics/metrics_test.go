package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Fetch(nil)
	m.Fetch(errors.New("timeout"))
	m.Fetch(errors.New("timeout"))
	m.Create(nil)
	m.Purge(errors.New("permission denied"))
	m.Reuse()
	m.SharedWait()

	if got := testutil.ToFloat64(m.PackageFetches.WithLabelValues("error")); got != 2 {
		t.Errorf("Expected 2 failed fetches, got %v", got)
	}
	if got := testutil.ToFloat64(m.PackageFetches.WithLabelValues("ok")); got != 1 {
		t.Errorf("Expected 1 successful fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.CachePurges.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed purge, got %v", got)
	}
	if got := testutil.ToFloat64(m.HandleReuses); got != 1 {
		t.Errorf("Expected 1 reuse, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Fetch(nil)
	m.Create(errors.New("x"))
	m.Purge(nil)
	m.Reuse()
	m.SharedWait()
	if err := m.WriteTextfile("/nonexistent/dir/metrics.prom"); err != nil {
		t.Errorf("Expected nil metrics to skip writing, got %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Create(nil)

	path := filepath.Join(t.TempDir(), "depot.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `depot_engine_creations_total{result="ok"} 1`) {
		t.Errorf("Textfile missing engine counter:\n%s", data)
	}
}
