package template

import (
	"fmt"
	"regexp"
)

// Issue is a template-authoring defect. Issues never reach the end user; the
// engine fails closed around them (a field with a broken depends_on reference
// is treated as never visible) and the store logs them for follow-up.
type Issue struct {
	ServiceID string `json:"service_id"`
	SectionID string `json:"section_id,omitempty"`
	FieldID   string `json:"field_id,omitempty"`
	Message   string `json:"message"`
}

func (i Issue) String() string {
	loc := i.ServiceID
	if i.SectionID != "" {
		loc += "/" + i.SectionID
	}
	if i.FieldID != "" {
		loc += "/" + i.FieldID
	}
	return fmt.Sprintf("%s: %s", loc, i.Message)
}

// Lint checks a template for authoring defects: duplicate ids, attributes on
// the wrong field kind, and depends_on conditions that point outside the
// field's own section.
func Lint(t *Template) []Issue {
	var issues []Issue
	report := func(sectionID, fieldID, format string, args ...any) {
		issues = append(issues, Issue{
			ServiceID: t.ServiceID,
			SectionID: sectionID,
			FieldID:   fieldID,
			Message:   fmt.Sprintf(format, args...),
		})
	}
	if t.ServiceID == "" {
		report("", "", "service_id is required")
	}
	sectionIDs := map[string]bool{}
	for _, sec := range t.Sections {
		if sec.ID == "" {
			report(sec.ID, "", "section id is required")
			continue
		}
		if sectionIDs[sec.ID] {
			report(sec.ID, "", "duplicate section id")
		}
		sectionIDs[sec.ID] = true

		fieldIDs := map[string]bool{}
		for _, f := range sec.Fields {
			fieldIDs[f.ID] = true
		}
		for _, f := range sec.Fields {
			lintField(report, sec, f, fieldIDs)
		}
	}
	return issues
}

func lintField(report func(string, string, string, ...any), sec Section, f Field, siblings map[string]bool) {
	if f.ID == "" {
		report(sec.ID, f.ID, "field id is required")
		return
	}
	if !ValidKind(f.Kind) {
		report(sec.ID, f.ID, "unknown field kind %q", f.Kind)
		return
	}
	if ChoiceKind(f.Kind) {
		if len(f.Options) == 0 {
			report(sec.ID, f.ID, "%s field requires options", f.Kind)
		}
		seen := map[string]bool{}
		for _, opt := range f.Options {
			if opt.Value == "" {
				report(sec.ID, f.ID, "option with empty value")
			}
			if seen[opt.Value] {
				report(sec.ID, f.ID, "duplicate option value %q", opt.Value)
			}
			seen[opt.Value] = true
		}
	} else if len(f.Options) > 0 {
		report(sec.ID, f.ID, "%s field must not declare options", f.Kind)
	}
	if f.Validation != nil {
		if (f.Validation.Min != nil || f.Validation.Max != nil) && f.Kind != KindNumber && f.Kind != KindList && f.Kind != KindMultiselect {
			report(sec.ID, f.ID, "min/max validation only applies to number, list and multiselect fields")
		}
		if f.Validation.Min != nil && f.Validation.Max != nil && *f.Validation.Min > *f.Validation.Max {
			report(sec.ID, f.ID, "validation min greater than max")
		}
		if f.Validation.Pattern != "" {
			if _, err := regexp.Compile(f.Validation.Pattern); err != nil {
				report(sec.ID, f.ID, "invalid validation pattern: %v", err)
			}
		}
	}
	if f.DependsOn != nil {
		if f.DependsOn.FieldID == "" {
			report(sec.ID, f.ID, "depends_on.field_id is required")
		} else if !siblings[f.DependsOn.FieldID] {
			// The condition will evaluate as never satisfied at runtime.
			report(sec.ID, f.ID, "depends_on references %q which is not in section %s", f.DependsOn.FieldID, sec.ID)
		}
		if f.DependsOn.FieldID == f.ID {
			report(sec.ID, f.ID, "field depends on itself")
		}
		if len(f.DependsOn.Values) == 0 {
			report(sec.ID, f.ID, "depends_on.values is empty")
		}
	}
}
