// Package devseed loads JSON fixtures used to pre-populate the mock database.
package devseed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry places Value at Path in the mock tree.
type Entry struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// LoadSeed reads a JSON array of entries from path.
func LoadSeed(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed entries. Entries without a path are rejected.
func ParseSeed(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("devseed: decode: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Path) == "" {
			return nil, fmt.Errorf("devseed: entry %d missing path", i)
		}
	}
	return entries, nil
}
