package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/depotscan/internal/config"
	"github.com/andresmejia3/depotscan/internal/metrics"
	"go.uber.org/zap"
)

func TestTeardownWritesMetrics(t *testing.T) {
	oldCfg, oldLogger, oldMetrics := Cfg, Logger, Metrics
	t.Cleanup(func() { Cfg, Logger, Metrics = oldCfg, oldLogger, oldMetrics })

	path := filepath.Join(t.TempDir(), "depot.prom")
	Cfg = config.DefaultConfig()
	Cfg.MetricsFile = path
	Logger = zap.NewNop()
	Metrics = metrics.New()
	Metrics.Reuse()

	teardown()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected metrics file after teardown: %v", err)
	}
	if !strings.Contains(string(raw), "depot_recognizer_reuses_total 1") {
		t.Errorf("Unexpected metrics file:\n%s", raw)
	}
}

func TestTeardownBeforeSetup(t *testing.T) {
	oldCfg, oldLogger, oldMetrics := Cfg, Logger, Metrics
	t.Cleanup(func() { Cfg, Logger, Metrics = oldCfg, oldLogger, oldMetrics })

	// PersistentPreRunE may fail before anything is initialized
	Cfg, Logger, Metrics = nil, nil, nil
	teardown()
}
