// Package catalog loads the static subsidy table the service matches against.
//
// The default dataset is embedded in the binary; CATALOG_PATH can point at an
// alternative JSON file. The catalog is read-only for the lifetime of the
// process.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fairyhunter13/subsidy-matcher/internal/domain"
)

//go:embed subsidies.json
var defaultData []byte

// Catalog is an immutable, ordered collection of subsidy records.
type Catalog struct {
	records []domain.Subsidy
	byID    map[string]int
}

// Load returns the catalog from path, or the embedded dataset when path is
// empty.
func Load(path string) (*Catalog, error) {
	data := defaultData
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes and validates a catalog from raw JSON.
func Parse(data []byte) (*Catalog, error) {
	var records []domain.Subsidy
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("catalog parse: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("catalog parse: %w: no records", domain.ErrInvalidArgument)
	}
	byID := make(map[string]int, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog parse: %w: record %d has empty id", domain.ErrInvalidArgument, i)
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("catalog parse: %w: duplicate id %q", domain.ErrInvalidArgument, r.ID)
		}
		byID[r.ID] = i
	}
	return &Catalog{records: records, byID: byID}, nil
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.records) }

// All returns the records in catalog order. Callers must not mutate the
// returned slice.
func (c *Catalog) All() []domain.Subsidy { return c.records }

// ByID returns the record with the given id.
func (c *Catalog) ByID(id string) (domain.Subsidy, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Subsidy{}, false
	}
	return c.records[i], true
}

// First returns the leading n records in catalog order, fewer when the
// catalog is shorter.
func (c *Catalog) First(n int) []domain.Subsidy {
	if n <= 0 {
		return nil
	}
	if n > len(c.records) {
		n = len(c.records)
	}
	out := make([]domain.Subsidy, n)
	copy(out, c.records[:n])
	return out
}
