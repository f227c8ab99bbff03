// Package catalog loads the item ordering table the recognizer uses to
// rank and disambiguate template matches.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed itemOrder.json
var bundledOrder []byte

// Order is an immutable, ordered list of item identifiers.
type Order struct {
	ids   []string
	index map[string]int
}

// Default returns the order bundled with the binary.
func Default() (Order, error) {
	return Parse(bundledOrder)
}

// Load reads an order table from a JSON file. An empty path means the bundled table.
func Load(path string) (Order, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Order{}, fmt.Errorf("failed to read item order: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of item IDs. IDs must be non-empty and unique.
func Parse(data []byte) (Order, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return Order{}, fmt.Errorf("failed to parse item order: %w", err)
	}
	if len(ids) == 0 {
		return Order{}, fmt.Errorf("item order is empty")
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if id == "" {
			return Order{}, fmt.Errorf("item order entry %d is empty", i)
		}
		if prev, dup := index[id]; dup {
			return Order{}, fmt.Errorf("item %q listed twice (positions %d and %d)", id, prev, i)
		}
		index[id] = i
	}
	return Order{ids: ids, index: index}, nil
}

// Len returns the number of items in the order.
func (o Order) Len() int { return len(o.ids) }

// IDs returns a copy of the ordered item IDs.
func (o Order) IDs() []string {
	out := make([]string, len(o.ids))
	copy(out, o.ids)
	return out
}

// Index returns the position of id, or -1 if it is unknown.
func (o Order) Index(id string) int {
	if i, ok := o.index[id]; ok {
		return i
	}
	return -1
}

func (o Order) Contains(id string) bool {
	_, ok := o.index[id]
	return ok
}

// MarshalJSON encodes the order the same way Parse reads it, so it can cross
// the worker boundary unchanged.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ids)
}
