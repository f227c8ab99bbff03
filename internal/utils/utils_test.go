package utils

import (
	"os"
	"testing"
	"time"
)

func TestAssetDigest(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "Hashed asset", path: "assets/pkg/item.3f2a9c1b.zip", want: "3f2a9c1b"},
		{name: "Absolute CDN URL path", path: "/toolbox/assets/pkg/item.0011aabb.zip", want: "0011aabb"},
		{name: "Query string", path: "assets/pkg/item.0011aabb.zip?v=2", want: "0011aabb"},
		{name: "Plain name", path: "assets/pkg/item.zip", want: ""},
		{name: "Uppercase is not a build hash", path: "item.3F2A9C1B.zip", want: ""},
		{name: "Hash in directory only", path: "3f2a9c1b/item.zip", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssetDigest(tt.path); got != tt.want {
				t.Errorf("AssetDigest(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestContentDigest(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	if got := ContentDigest(nil, 8); got != "d41d8cd9" {
		t.Errorf("Expected d41d8cd9, got %s", got)
	}
	if got := ContentDigest(nil, 0); len(got) != 32 {
		t.Errorf("Expected full 32-char digest, got %q", got)
	}
}

func TestGenerateImageID(t *testing.T) {
	tmp, err := os.CreateTemp("", "depot_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte("fake screenshot")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id, err := GenerateImageID(tmp.Name())
	if err != nil || id == "" {
		t.Errorf("Failed to generate ID: %v", err)
	}

	// Verify Determinism
	id2, _ := GenerateImageID(tmp.Name())
	if id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()
	// Bump mtime explicitly in case the filesystem clock is coarse
	later := time.Now().Add(time.Second)
	os.Chtimes(tmp.Name(), later, later)

	id3, _ := GenerateImageID(tmp.Name())
	if id == id3 {
		t.Error("Hash did not change after file modification")
	}
}

func TestSafeCommandCapturesStderr(t *testing.T) {
	c := NewSafeCommand("sh", "-c", "echo boom >&2")
	if err := c.Run(); err != nil {
		t.Skipf("sh not available: %v", err)
	}
	if c.Stderr.String() != "boom\n" {
		t.Errorf("Expected captured stderr 'boom', got %q", c.Stderr.String())
	}
}
