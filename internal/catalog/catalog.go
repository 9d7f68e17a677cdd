// Package catalog loads product catalogs from YAML and writes them to a
// store. Catalog files seed scenarios and feed the import command.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/store"
)

// Catalog is a set of categories and items.
//
// Categories may appear in any order; Apply writes parents before
// children.
type Catalog struct {
	Categories []ir.Category `yaml:"categories"`
	Items      []ir.Item     `yaml:"items"`
}

// Load reads a catalog file. Unknown fields are rejected.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog YAML and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ids and category references.
func (c *Catalog) Validate() error {
	categories := make(map[int64]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.ID <= 0 {
			return fmt.Errorf("categories[%d]: id must be positive", i)
		}
		if categories[cat.ID] {
			return fmt.Errorf("categories[%d]: duplicate id %d", i, cat.ID)
		}
		categories[cat.ID] = true
	}
	for i, cat := range c.Categories {
		if cat.ParentID != 0 && !categories[cat.ParentID] {
			return fmt.Errorf("categories[%d]: unknown parent %d", i, cat.ParentID)
		}
	}

	items := make(map[int64]bool, len(c.Items))
	for i, item := range c.Items {
		if item.ID <= 0 {
			return fmt.Errorf("items[%d]: id must be positive", i)
		}
		if items[item.ID] {
			return fmt.Errorf("items[%d]: duplicate id %d", i, item.ID)
		}
		items[item.ID] = true
		for _, categoryID := range item.Categories {
			if !categories[categoryID] {
				return fmt.Errorf("items[%d]: unknown category %d", i, categoryID)
			}
		}
	}
	return nil
}

// Stats counts what Apply wrote.
type Stats struct {
	Categories int `json:"categories"`
	Items      int `json:"items"`
}

// Apply writes the catalog to s. Writes are upserts, so applying the same
// catalog twice is harmless.
func (c *Catalog) Apply(ctx context.Context, s *store.Store) (Stats, error) {
	var stats Stats
	for _, cat := range c.orderedCategories() {
		if _, err := s.WriteCategory(ctx, cat); err != nil {
			return stats, err
		}
		stats.Categories++
	}
	for _, item := range c.Items {
		if err := s.WriteItem(ctx, item); err != nil {
			return stats, err
		}
		stats.Items++
	}
	return stats, nil
}

// orderedCategories returns categories with every parent ahead of its
// children. Siblings keep file order.
func (c *Catalog) orderedCategories() []ir.Category {
	byID := make(map[int64]ir.Category, len(c.Categories))
	for _, cat := range c.Categories {
		byID[cat.ID] = cat
	}

	out := make([]ir.Category, 0, len(c.Categories))
	written := make(map[int64]bool, len(c.Categories))
	var visit func(cat ir.Category, depth int)
	visit = func(cat ir.Category, depth int) {
		if written[cat.ID] || depth > len(c.Categories) {
			return
		}
		if parent, ok := byID[cat.ParentID]; ok && cat.ParentID != 0 {
			visit(parent, depth+1)
		}
		if !written[cat.ID] {
			written[cat.ID] = true
			out = append(out, cat)
		}
	}
	for _, cat := range c.Categories {
		visit(cat, 0)
	}
	return slices.Clip(out)
}
