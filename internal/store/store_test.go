package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/depotscan/internal/cache"
	"github.com/andresmejia3/depotscan/internal/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("depot_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Namespaced cache ---

	for _, e := range []struct{ ns, key string }{
		{cache.PackageNamespace, "item.zip"},
		{cache.PackageNamespace, "meta"},
		{"dr.pkgx", "keep"},
		{"home", "setting"},
	} {
		if err := s.Set(ctx, e.ns, e.key, []byte("v")); err != nil {
			t.Fatalf("Set(%s, %s) failed: %v", e.ns, e.key, err)
		}
	}

	if err := s.Clear(ctx, cache.PackageNamespace); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	keys, err := s.Keys(ctx, cache.PackageNamespace)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected cleared namespace, got %v", keys)
	}
	if _, err := s.Get(ctx, "dr.pkgx", "keep"); err != nil {
		t.Errorf("Expected dr.pkgx to survive, got %v", err)
	}
	if _, err := s.Get(ctx, "home", "setting"); err != nil {
		t.Errorf("Expected home to survive, got %v", err)
	}
	if _, err := s.Get(ctx, cache.PackageNamespace, "meta"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// --- Scan history ---

	items := []types.Item{{ID: "30012", Count: 128, Similarity: 0.97}}
	first, err := s.SaveScan(ctx, "img_123", "/tmp/depot.png", items)
	if err != nil {
		t.Fatalf("SaveScan failed: %v", err)
	}

	// Re-scanning the same image replaces the result instead of duplicating it
	items[0].Count = 130
	second, err := s.SaveScan(ctx, "img_123", "/tmp/depot.png", items)
	if err != nil {
		t.Fatalf("SaveScan (rescan) failed: %v", err)
	}
	if first != second {
		t.Errorf("Expected rescan to keep ID %s, got %s", first, second)
	}

	scans, err := s.ListScans(ctx, 10)
	if err != nil {
		t.Fatalf("ListScans failed: %v", err)
	}
	if len(scans) != 1 {
		t.Fatalf("Expected 1 scan, got %d", len(scans))
	}
	if scans[0].Items[0].Count != 130 {
		t.Errorf("Expected updated count 130, got %d", scans[0].Items[0].Count)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
