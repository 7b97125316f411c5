// Package requirements implements the fulfillment engine for technical
// requirement collection: field catalog indexing, cross-service unification,
// collection planning, prefill resolution and completion validation. Every
// function here is pure; persistence and phase handling live in the engine.
package requirements

import "scopeline/internal/template"

// CatalogEntry aggregates every occurrence of one logical question across the
// purchased services.
type CatalogEntry struct {
	// Definition is the field definition of the first owner encountered in
	// input order; it provides the default label and options for display.
	Definition template.Field `json:"definition"`
	// Required is the conservative union: true if any owner requires the
	// field. Per-service completion still uses that service's own flag.
	Required       bool     `json:"required"`
	OwningServices []string `json:"owning_services"`
	// Sources lists "serviceID/sectionID" provenance for display, e.g.
	// "also required by impl-helpdesk".
	Sources []string `json:"sources"`
}

// Catalog indexes the fields of a purchased-service set by field identity.
// Iteration order is first-seen order over the input, so downstream output
// is deterministic for a given purchased list.
type Catalog struct {
	entries map[template.Identity]*CatalogEntry
	order   []template.Identity
}

// BuildCatalog walks each purchased service's template in input order.
// Services without a template require no specification and are skipped.
func BuildCatalog(store *template.Store, purchased []string) *Catalog {
	c := &Catalog{entries: map[template.Identity]*CatalogEntry{}}
	for _, serviceID := range purchased {
		tpl := store.Get(serviceID)
		if tpl == nil {
			continue
		}
		for _, sec := range tpl.Sections {
			for _, f := range sec.Fields {
				c.record(serviceID, sec.ID, f)
			}
		}
	}
	return c
}

func (c *Catalog) record(serviceID, sectionID string, f template.Field) {
	id := f.Identity()
	entry, ok := c.entries[id]
	if !ok {
		entry = &CatalogEntry{Definition: f}
		c.entries[id] = entry
		c.order = append(c.order, id)
	}
	entry.Required = entry.Required || f.Required
	if !contains(entry.OwningServices, serviceID) {
		entry.OwningServices = append(entry.OwningServices, serviceID)
	}
	entry.Sources = append(entry.Sources, serviceID+"/"+sectionID)
}

// Get returns the entry for an identity, or nil.
func (c *Catalog) Get(id template.Identity) *CatalogEntry {
	return c.entries[id]
}

// Identities returns all indexed identities in first-seen order.
func (c *Catalog) Identities() []template.Identity {
	out := make([]template.Identity, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of distinct field identities.
func (c *Catalog) Len() int { return len(c.order) }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
