// Package catalogue holds the static food table: an immutable in-memory index
// loaded once at startup, plus a deterministic fuzzy matcher for free-text names.
package catalogue

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mealsense/mealsense_core/internal/models"
)

// ErrNotFound is returned by Get for names that are not in the catalogue
var ErrNotFound = errors.New("food not found in catalogue")

// Catalogue is an immutable food table keyed by food name.
// It is safe for concurrent use.
type Catalogue struct {
	records map[string]models.FoodRecord
	names   []string // sorted
}

// New builds a Catalogue from records; food names must be unique
func New(records []models.FoodRecord) (*Catalogue, error) {
	c := &Catalogue{
		records: make(map[string]models.FoodRecord, len(records)),
		names:   make([]string, 0, len(records)),
	}

	for _, r := range records {
		if r.Food == "" {
			return nil, errors.New("food name is blank")
		}
		if _, exists := c.records[r.Food]; exists {
			return nil, fmt.Errorf("duplicate food %q", r.Food)
		}
		c.records[r.Food] = r
		c.names = append(c.names, r.Food)
	}

	sort.Strings(c.names)
	return c, nil
}

// Get returns the record for an exact food name
func (c *Catalogue) Get(food string) (models.FoodRecord, error) {
	r, ok := c.records[food]
	if !ok {
		return models.FoodRecord{}, fmt.Errorf("%w: %q", ErrNotFound, food)
	}
	return r, nil
}

// AllNames returns the food names in ascending order
func (c *Catalogue) AllNames() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of foods
func (c *Catalogue) Len() int {
	return len(c.names)
}
