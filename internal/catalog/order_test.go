package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultOrder(t *testing.T) {
	o, err := Default()
	if err != nil {
		t.Fatalf("Bundled order failed to parse: %v", err)
	}
	if o.Len() == 0 {
		t.Fatal("Expected bundled order to contain items")
	}
	// LMD leads the depot in game order
	if o.Index("4001") != 0 {
		t.Errorf("Expected 4001 at position 0, got %d", o.Index("4001"))
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{name: "Valid order", input: `["30011","30012","4001"]`, wantLen: 3},
		{name: "Empty array", input: `[]`, wantErr: true},
		{name: "Empty ID", input: `["30011",""]`, wantErr: true},
		{name: "Duplicate ID", input: `["30011","30011"]`, wantErr: true},
		{name: "Not JSON", input: `30011`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := Parse([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if o.Len() != tt.wantLen {
				t.Errorf("Expected %d items, got %d", tt.wantLen, o.Len())
			}
		})
	}
}

func TestOrderIsImmutable(t *testing.T) {
	o, err := Parse([]byte(`["a","b"]`))
	if err != nil {
		t.Fatal(err)
	}
	ids := o.IDs()
	ids[0] = "mutated"

	if o.IDs()[0] != "a" {
		t.Errorf("Mutating IDs() result leaked into the order: %v", o.IDs())
	}
	if o.Index("b") != 1 || o.Index("missing") != -1 {
		t.Errorf("Unexpected index lookups: b=%d missing=%d", o.Index("b"), o.Index("missing"))
	}
	if !o.Contains("a") || o.Contains("mutated") {
		t.Error("Contains does not match the original order")
	}
}

func TestLoadAndMarshal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.json")
	if err := os.WriteFile(path, []byte(`["x","y","z"]`), 0644); err != nil {
		t.Fatal(err)
	}

	o, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(raw) != `["x","y","z"]` {
		t.Errorf("Unexpected encoding %s", raw)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
