package requirements

import (
	"fmt"
	"strconv"

	"scopeline/internal/template"
)

// FieldRef names a missing field by section and field id.
type FieldRef struct {
	SectionID string `json:"section_id"`
	FieldID   string `json:"field_id"`
}

func (r FieldRef) String() string {
	return r.SectionID + "/" + r.FieldID
}

// MissingRequired walks every section and field and returns the required,
// currently-visible fields that have no answer, in template order. An empty
// result means the service's specification is complete. Fields whose
// depends_on condition is unmet are invisible and never reported missing;
// visibility is re-evaluated against the supplied answer set on every call.
func MissingRequired(tpl *template.Template, values map[string]any) []FieldRef {
	missing := []FieldRef{}
	if tpl == nil {
		return missing
	}
	for _, sec := range tpl.Sections {
		for _, f := range sec.Fields {
			if !f.Required {
				continue
			}
			if !Visible(sec, f, values) {
				continue
			}
			if !Answered(f.Kind, values[f.ID]) {
				missing = append(missing, FieldRef{SectionID: sec.ID, FieldID: f.ID})
			}
		}
	}
	return missing
}

// Visible evaluates a field's depends_on predicate against the current
// answers. A condition referencing a field outside its own section is an
// authoring defect; it fails closed and hides the field.
func Visible(sec template.Section, f template.Field, values map[string]any) bool {
	cond := f.DependsOn
	if cond == nil {
		return true
	}
	found := false
	for _, sibling := range sec.Fields {
		if sibling.ID == cond.FieldID {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	current, ok := values[cond.FieldID]
	if !ok || current == nil {
		return false
	}
	currentStr := stringValue(current)
	for _, want := range cond.Values {
		if currentStr == want {
			return true
		}
	}
	return false
}

// Answered reports whether v counts as a present answer for a field kind:
// non-nil, non-empty string, and non-empty for list-shaped kinds. A checkbox
// holding false is still an answer.
func Answered(kind template.Kind, v any) bool {
	if v == nil {
		return false
	}
	switch kind {
	case template.KindList, template.KindMultiselect:
		switch list := v.(type) {
		case []any:
			return len(list) > 0
		case []string:
			return len(list) > 0
		default:
			return false
		}
	case template.KindCheckbox:
		_, ok := v.(bool)
		return ok
	default:
		if s, ok := v.(string); ok {
			return s != ""
		}
		return true
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ServiceStatus is the completion picture for one purchased service.
type ServiceStatus struct {
	ServiceID        string     `json:"service_id"`
	Missing          []FieldRef `json:"missing"`
	AnsweredRequired int        `json:"answered_required"`
	TotalRequired    int        `json:"total_required"`
	Percent          float64    `json:"percent"`
	Complete         bool       `json:"complete"`
}

// ServiceCompletion computes a single service's completion. A template with
// zero visible required fields is vacuously complete at 100%.
func ServiceCompletion(tpl *template.Template, values map[string]any) ServiceStatus {
	st := ServiceStatus{Missing: []FieldRef{}}
	if tpl == nil {
		st.Percent = 100
		st.Complete = true
		return st
	}
	st.ServiceID = tpl.ServiceID
	for _, sec := range tpl.Sections {
		for _, f := range sec.Fields {
			if !f.Required || !Visible(sec, f, values) {
				continue
			}
			st.TotalRequired++
			if Answered(f.Kind, values[f.ID]) {
				st.AnsweredRequired++
			} else {
				st.Missing = append(st.Missing, FieldRef{SectionID: sec.ID, FieldID: f.ID})
			}
		}
	}
	if st.TotalRequired == 0 {
		st.Percent = 100
	} else {
		st.Percent = float64(st.AnsweredRequired) / float64(st.TotalRequired) * 100
	}
	st.Complete = len(st.Missing) == 0
	return st
}

// EngagementStatus aggregates completion over the purchased-service set.
// Services without a template are excluded from numerator and denominator.
type EngagementStatus struct {
	Services         []ServiceStatus `json:"services"`
	SpecServices     int             `json:"spec_services"`
	CompleteServices int             `json:"complete_services"`
	Percent          float64         `json:"percent"`
}

// EngagementCompletion computes the engagement-level aggregate. answers maps
// service id to that service's collected values; an absent entry is identical
// to an empty answer set.
func EngagementCompletion(store *template.Store, purchased []string, answers map[string]map[string]any) EngagementStatus {
	agg := EngagementStatus{Services: []ServiceStatus{}}
	for _, serviceID := range purchased {
		tpl := store.Get(serviceID)
		if tpl == nil {
			continue
		}
		st := ServiceCompletion(tpl, answers[serviceID])
		agg.Services = append(agg.Services, st)
		agg.SpecServices++
		if st.Complete {
			agg.CompleteServices++
		}
	}
	if agg.SpecServices == 0 {
		agg.Percent = 100
	} else {
		agg.Percent = float64(agg.CompleteServices) / float64(agg.SpecServices) * 100
	}
	return agg
}
