// Package catalog holds the static camp list and the bilingual terms shown on
// the review step. Both are read-only inputs to the wizard.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Camp is one selectable camp. Full camps are listed but cannot be selected.
type Camp struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Full        bool   `json:"full"`
}

// Term is one paragraph of the terms and conditions in both languages.
type Term struct {
	English string `json:"english"`
	Spanish string `json:"spanish"`
}

// Catalog is an immutable camp list plus terms text.
type Catalog struct {
	camps  []Camp
	byName map[string]Camp
	terms  []Term
}

type document struct {
	Camps []Camp `json:"camps"`
	Terms []Term `json:"terms"`
}

//go:embed catalog.json
var defaultDocument []byte

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded document invalid: %v", err))
	}
	return c
}

// Parse decodes a JSON catalog document. Camp names must be unique and
// non-empty.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Camps, doc.Terms)
}

// New builds a catalog from camps and terms.
func New(camps []Camp, terms []Term) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Camp, len(camps)), terms: append([]Term(nil), terms...)}
	for _, camp := range camps {
		camp.Name = strings.TrimSpace(camp.Name)
		if camp.Name == "" {
			return nil, fmt.Errorf("camp name is required")
		}
		if _, dup := c.byName[camp.Name]; dup {
			return nil, fmt.Errorf("duplicate camp %q", camp.Name)
		}
		c.byName[camp.Name] = camp
		c.camps = append(c.camps, camp)
	}
	return c, nil
}

// Camps returns the camps in catalog order.
func (c *Catalog) Camps() []Camp { return append([]Camp(nil), c.camps...) }

// Terms returns the terms paragraphs.
func (c *Catalog) Terms() []Term { return append([]Term(nil), c.terms...) }

// Lookup finds a camp by name.
func (c *Catalog) Lookup(name string) (Camp, bool) {
	camp, ok := c.byName[name]
	return camp, ok
}

// Selectable reports whether name is a known camp that is not full.
func (c *Catalog) Selectable(name string) bool {
	camp, ok := c.byName[name]
	return ok && !camp.Full
}

// Available returns the names of camps that can still be selected, sorted.
func (c *Catalog) Available() []string {
	var names []string
	for _, camp := range c.camps {
		if !camp.Full {
			names = append(names, camp.Name)
		}
	}
	sort.Strings(names)
	return names
}
