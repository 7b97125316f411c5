// Package export renders an engagement's collected requirements into
// shareable artifacts: a markdown specification document and a JSON summary.
package export

import (
	"fmt"
	"sort"
	"strings"

	"scopeline/internal/config"
	"scopeline/internal/domain"
	"scopeline/internal/requirements"
	"scopeline/internal/template"
)

// Summary is the machine-readable counterpart of the markdown document.
type Summary struct {
	EngagementID      string                     `json:"engagement_id"`
	ClientName        string                     `json:"client_name"`
	Phase             string                     `json:"phase"`
	PurchasedServices []string                   `json:"purchased_services"`
	CompletionPercent float64                    `json:"completion_percent"`
	Services          []ServiceSummary           `json:"services"`
	SharedFields      []SharedFieldSummary       `json:"shared_fields"`
	Status            requirements.EngagementStatus `json:"-"`
}

type ServiceSummary struct {
	ServiceID        string         `json:"service_id"`
	Title            string         `json:"title"`
	Complete         bool           `json:"complete"`
	AnsweredRequired int            `json:"answered_required"`
	TotalRequired    int            `json:"total_required"`
	Values           map[string]any `json:"values"`
}

type SharedFieldSummary struct {
	FieldID    string   `json:"field_id"`
	Kind       string   `json:"kind"`
	Services   []string `json:"services"`
	Confidence float64  `json:"confidence"`
}

// BuildSummary assembles the JSON summary from already-loaded state.
func BuildSummary(eng domain.Engagement, cfg *config.Config, store *template.Store, answers map[string]map[string]any) Summary {
	status := requirements.EngagementCompletion(store, eng.PurchasedServices, answers)
	part := requirements.Unify(requirements.BuildCatalog(store, eng.PurchasedServices))

	s := Summary{
		EngagementID:      eng.ID,
		ClientName:        eng.ClientName,
		Phase:             string(eng.Phase),
		PurchasedServices: eng.PurchasedServices,
		CompletionPercent: status.Percent,
		Status:            status,
	}
	for _, st := range status.Services {
		tpl := store.Get(st.ServiceID)
		title := st.ServiceID
		if tpl != nil {
			title = tpl.Title
		} else if info, ok := cfg.Service(st.ServiceID); ok {
			title = info.Name
		}
		vals := answers[st.ServiceID]
		if vals == nil {
			vals = map[string]any{}
		}
		s.Services = append(s.Services, ServiceSummary{
			ServiceID:        st.ServiceID,
			Title:            title,
			Complete:         st.Complete,
			AnsweredRequired: st.AnsweredRequired,
			TotalRequired:    st.TotalRequired,
			Values:           vals,
		})
	}
	for _, sh := range part.Shared {
		s.SharedFields = append(s.SharedFields, SharedFieldSummary{
			FieldID:    sh.Identity.FieldID,
			Kind:       string(sh.Identity.Kind),
			Services:   sh.Entry.OwningServices,
			Confidence: sh.Confidence,
		})
	}
	return s
}

// Markdown renders the full requirements document for handoff to a
// development team. Unanswered fields are listed explicitly so gaps are
// visible rather than silently dropped.
func Markdown(s Summary, store *template.Store, generatedAt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Requirements Specification — %s\n\n", s.ClientName)
	fmt.Fprintf(&b, "- Engagement: `%s`\n", s.EngagementID)
	fmt.Fprintf(&b, "- Phase: %s\n", s.Phase)
	fmt.Fprintf(&b, "- Completion: %.0f%%\n", s.CompletionPercent)
	if generatedAt != "" {
		fmt.Fprintf(&b, "- Generated: %s\n", generatedAt)
	}
	b.WriteString("\n")

	if len(s.SharedFields) > 0 {
		b.WriteString("## Shared Requirements\n\n")
		b.WriteString("These answers apply to more than one purchased service.\n\n")
		for _, sh := range s.SharedFields {
			fmt.Fprintf(&b, "- `%s` (%s) — used by %s (confidence %.2f)\n",
				sh.FieldID, sh.Kind, strings.Join(sh.Services, ", "), sh.Confidence)
		}
		b.WriteString("\n")
	}

	for _, svc := range s.Services {
		fmt.Fprintf(&b, "## %s\n\n", svc.Title)
		if svc.TotalRequired == 0 {
			b.WriteString("No required fields.\n\n")
		} else {
			fmt.Fprintf(&b, "%d of %d required fields answered.\n\n", svc.AnsweredRequired, svc.TotalRequired)
		}
		tpl := store.Get(svc.ServiceID)
		if tpl == nil {
			continue
		}
		for _, sec := range tpl.Sections {
			wrote := false
			for _, f := range sec.Fields {
				if !requirements.Visible(sec, f, svc.Values) {
					continue
				}
				if !wrote {
					fmt.Fprintf(&b, "### %s\n\n", sec.Title)
					wrote = true
				}
				v, ok := svc.Values[f.ID]
				if ok && requirements.Answered(f.Kind, v) {
					fmt.Fprintf(&b, "- **%s**: %s\n", f.Label, renderValue(v))
				} else if f.Required {
					fmt.Fprintf(&b, "- **%s**: _missing_\n", f.Label)
				} else {
					fmt.Fprintf(&b, "- **%s**: _not provided_\n", f.Label)
				}
			}
			if wrote {
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, renderValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, renderValue(x[k])))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", x)
	}
}
