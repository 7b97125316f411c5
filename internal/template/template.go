package template

import "sort"

// Kind discriminates the nine field shapes. Choice kinds (select, multiselect,
// radio) carry Options; number carries numeric bounds; everything else is
// scalar or list text. Lint enforces that a field only declares the attributes
// its kind supports.
type Kind string

const (
	KindText        Kind = "text"
	KindTextarea    Kind = "textarea"
	KindNumber      Kind = "number"
	KindSelect      Kind = "select"
	KindMultiselect Kind = "multiselect"
	KindRadio       Kind = "radio"
	KindCheckbox    Kind = "checkbox"
	KindList        Kind = "list"
	KindDate        Kind = "date"
)

// Kinds lists all field kinds.
var Kinds = []Kind{
	KindText, KindTextarea, KindNumber, KindSelect, KindMultiselect,
	KindRadio, KindCheckbox, KindList, KindDate,
}

// ValidKind reports whether k names a known field kind.
func ValidKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ChoiceKind reports whether fields of kind k declare options.
func ChoiceKind(k Kind) bool {
	return k == KindSelect || k == KindMultiselect || k == KindRadio
}

// Template is the full question schema for one purchasable service.
type Template struct {
	ServiceID string    `yaml:"service_id" json:"service_id"`
	Title     string    `yaml:"title" json:"title"`
	Sections  []Section `yaml:"sections" json:"sections"`
}

type Section struct {
	ID     string  `yaml:"id" json:"id"`
	Title  string  `yaml:"title" json:"title"`
	Order  int     `yaml:"order" json:"order"`
	Fields []Field `yaml:"fields" json:"fields"`
}

type Field struct {
	ID         string      `yaml:"id" json:"id"`
	Label      string      `yaml:"label" json:"label"`
	Kind       Kind        `yaml:"kind" json:"kind"`
	Required   bool        `yaml:"required" json:"required"`
	Options    []Option    `yaml:"options,omitempty" json:"options,omitempty"`
	Validation *Validation `yaml:"validation,omitempty" json:"validation,omitempty"`
	DependsOn  *Condition  `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Help       string      `yaml:"help,omitempty" json:"help,omitempty"`
}

type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

type Validation struct {
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Pattern string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// Condition is a single-hop visibility predicate: show the field only while
// the controlling field (same section) holds one of Values. One controlling
// field per dependent is a deliberate limitation, so there is no dependency
// graph and no cycle handling.
type Condition struct {
	FieldID string   `yaml:"field_id" json:"field_id"`
	Values  []string `yaml:"values" json:"values"`
}

// Identity keys a logical question across templates: two fields with the same
// id and kind in different templates are the same question regardless of
// label or section.
type Identity struct {
	FieldID string `json:"field_id"`
	Kind    Kind   `json:"kind"`
}

func (f Field) Identity() Identity {
	return Identity{FieldID: f.ID, Kind: f.Kind}
}

// normalize orders sections by their declared order value, preserving
// declaration order on ties. Fields keep declaration order.
func (t *Template) normalize() {
	sort.SliceStable(t.Sections, func(i, j int) bool {
		return t.Sections[i].Order < t.Sections[j].Order
	})
}

// SectionOf returns the section containing the field id, if any.
func (t *Template) SectionOf(fieldID string) (Section, Field, bool) {
	for _, sec := range t.Sections {
		for _, f := range sec.Fields {
			if f.ID == fieldID {
				return sec, f, true
			}
		}
	}
	return Section{}, Field{}, false
}

// FieldCount returns the number of fields across all sections.
func (t *Template) FieldCount() int {
	n := 0
	for _, sec := range t.Sections {
		n += len(sec.Fields)
	}
	return n
}

// RequiredCount returns the number of required fields across all sections.
func (t *Template) RequiredCount() int {
	n := 0
	for _, sec := range t.Sections {
		for _, f := range sec.Fields {
			if f.Required {
				n++
			}
		}
	}
	return n
}
