package requirements

import "scopeline/internal/template"

// SharedField is a question owned by two or more purchased services. The user
// answers it once; the answer is suggested into every owner's answer set but
// each service keeps its own copy.
type SharedField struct {
	Identity template.Identity `json:"identity"`
	Entry    *CatalogEntry     `json:"entry"`
	// Confidence in [0,1] drives UI emphasis and prefill trust only; it
	// never affects correctness.
	Confidence float64 `json:"confidence"`
}

// Partition is the unification result.
type Partition struct {
	Shared []SharedField `json:"shared"`
	// ServiceSpecific groups single-owner entries under their owner, in
	// catalog order within each service.
	ServiceSpecific map[string][]*CatalogEntry `json:"service_specific"`
}

// SpecificCount returns the number of service-specific fields for a service.
func (p Partition) SpecificCount(serviceID string) int {
	return len(p.ServiceSpecific[serviceID])
}

// SharedCountFor returns how many shared fields a service participates in.
func (p Partition) SharedCountFor(serviceID string) int {
	n := 0
	for _, sf := range p.Shared {
		if contains(sf.Entry.OwningServices, serviceID) {
			n++
		}
	}
	return n
}

// Unify partitions the catalog into shared and service-specific fields.
func Unify(c *Catalog) Partition {
	p := Partition{ServiceSpecific: map[string][]*CatalogEntry{}}
	for _, id := range c.Identities() {
		entry := c.Get(id)
		if len(entry.OwningServices) > 1 {
			p.Shared = append(p.Shared, SharedField{
				Identity:   id,
				Entry:      entry,
				Confidence: confidence(entry),
			})
			continue
		}
		owner := entry.OwningServices[0]
		p.ServiceSpecific[owner] = append(p.ServiceSpecific[owner], entry)
	}
	return p
}

// confidence scores how safe it is to treat occurrences as one question:
// base 0.5, +0.2 for a declared validation rule, +0.1 per owner capped at
// +0.3, +0.1 for closed-vocabulary kinds. Clamped to [0,1].
func confidence(entry *CatalogEntry) float64 {
	score := 0.5
	if entry.Definition.Validation != nil {
		score += 0.2
	}
	ownerBonus := 0.1 * float64(len(entry.OwningServices))
	if ownerBonus > 0.3 {
		ownerBonus = 0.3
	}
	score += ownerBonus
	if entry.Definition.Kind == template.KindSelect || entry.Definition.Kind == template.KindRadio {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
