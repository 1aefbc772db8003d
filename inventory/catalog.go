package inventory

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Category is one section of the catalog with its labels in display order.
type Category struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// Catalog is the static reference list of categories and labels.
type Catalog interface {
	Categories() []Category
}

// StaticCatalog is a Catalog fixed at startup with case-insensitive lookups.
type StaticCatalog struct {
	categories []Category
	index      map[string]catalogEntry
}

type catalogEntry struct {
	name     string
	category string
}

// NewStaticCatalog indexes cats. When a label appears twice, the first
// occurrence wins.
func NewStaticCatalog(cats []Category) *StaticCatalog {
	c := &StaticCatalog{index: make(map[string]catalogEntry)}
	for _, cat := range cats {
		labels := make([]string, 0, len(cat.Labels))
		for _, l := range cat.Labels {
			key := catalogKey(l)
			if key == "" {
				continue
			}
			if _, dup := c.index[key]; dup {
				continue
			}
			c.index[key] = catalogEntry{name: strings.TrimSpace(l), category: cat.Name}
			labels = append(labels, strings.TrimSpace(l))
		}
		c.categories = append(c.categories, Category{Name: cat.Name, Labels: labels})
	}
	return c
}

// ReadCatalog decodes a JSON array of categories.
func ReadCatalog(r io.Reader) (*StaticCatalog, error) {
	var cats []Category
	if err := json.NewDecoder(r).Decode(&cats); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewStaticCatalog(cats), nil
}

func (c *StaticCatalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{Name: cat.Name, Labels: append([]string(nil), cat.Labels...)}
	}
	return out
}

// Lookup returns the canonical spelling and category of a label.
func (c *StaticCatalog) Lookup(label string) (name, category string, ok bool) {
	e, ok := c.index[catalogKey(label)]
	return e.name, e.category, ok
}

func catalogKey(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// lookupLabel works against any Catalog, using the index when available.
func lookupLabel(c Catalog, label string) (name, category string, ok bool) {
	if sc, isStatic := c.(*StaticCatalog); isStatic {
		return sc.Lookup(label)
	}
	key := catalogKey(label)
	for _, cat := range c.Categories() {
		for _, l := range cat.Labels {
			if catalogKey(l) == key {
				return l, cat.Name, true
			}
		}
	}
	return "", "", false
}
