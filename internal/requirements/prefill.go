package requirements

import "scopeline/internal/domain"

// Resolver derives initial answers for one service from the discovery meeting
// record. A resolver returns only fields it can justify from source data;
// fields it cannot resolve are simply absent. Resolvers never see, and so can
// never overwrite, already-collected answers.
type Resolver func(m domain.MeetingRecord) map[string]any

// Registry maps service ids to their prefill resolvers. Unregistered ids fall
// back to a no-op resolver returning an empty set, so a typo in a service id
// degrades to "no prefill" instead of failing.
type Registry struct {
	resolvers map[string]Resolver
}

// NewRegistry builds the registry with the default catalog's resolvers
// registered.
func NewRegistry() *Registry {
	r := &Registry{resolvers: map[string]Resolver{}}
	r.Register("impl-crm", prefillCRM)
	r.Register("impl-helpdesk", prefillHelpdesk)
	r.Register("ai-faq-bot", prefillFAQBot)
	r.Register("ai-lead-scoring", prefillLeadScoring)
	r.Register("data-migration", prefillDataMigration)
	return r
}

// Register installs or replaces the resolver for a service id.
func (r *Registry) Register(serviceID string, fn Resolver) {
	r.resolvers[serviceID] = fn
}

// Resolve runs the service's resolver against the meeting record. The result
// is always non-nil.
func (r *Registry) Resolve(serviceID string, m domain.MeetingRecord) map[string]any {
	fn, ok := r.resolvers[serviceID]
	if !ok {
		return map[string]any{}
	}
	out := fn(m)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// Merge layers prefill underneath existing answers: every existing key wins,
// prefill only initializes fields with no answer yet. The inputs are not
// mutated.
func Merge(existing, prefill map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(prefill))
	for k, v := range prefill {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	return merged
}

// crmPlatformKeys maps inventoried CRM systems to crm_preference options.
var crmPlatformKeys = map[string]bool{
	"hubspot":    true,
	"pipedrive":  true,
	"salesforce": true,
}

func prefillCRM(m domain.MeetingRecord) map[string]any {
	out := map[string]any{}
	if sys, ok := m.SystemOfKind("crm"); ok {
		if crmPlatformKeys[sys.Key] {
			out["crm_preference"] = sys.Key
		}
		out["existing_data"] = "yes_crm"
		out["legacy_crm_name"] = sys.Name
	} else if _, ok := m.SystemOfKind("spreadsheet"); ok {
		out["existing_data"] = "yes_spreadsheet"
	}
	return out
}

func prefillHelpdesk(m domain.MeetingRecord) map[string]any {
	out := map[string]any{}
	if sys, ok := m.SystemOfKind("helpdesk"); ok {
		switch sys.Key {
		case "zendesk", "freshdesk", "front":
			out["helpdesk_platform"] = sys.Key
		}
	}
	return out
}

func prefillFAQBot(m domain.MeetingRecord) map[string]any {
	out := map[string]any{}
	if len(m.Channels) > 0 {
		out["channels"] = append([]string(nil), m.Channels...)
	}
	if m.ROI.MonthlyInquiries > 0 {
		out["monthly_inquiries"] = float64(m.ROI.MonthlyInquiries)
	}
	return out
}

func prefillLeadScoring(m domain.MeetingRecord) map[string]any {
	out := map[string]any{}
	if m.ROI.LeadsPerMonth > 0 {
		out["leads_per_month"] = float64(m.ROI.LeadsPerMonth)
	}
	return out
}

func prefillDataMigration(m domain.MeetingRecord) map[string]any {
	out := map[string]any{}
	if sys, ok := m.SystemOfKind("crm"); ok {
		out["existing_data"] = "yes_crm"
		out["source_system"] = sys.Name
	} else if sys, ok := m.SystemOfKind("spreadsheet"); ok {
		out["existing_data"] = "yes_spreadsheet"
		out["source_system"] = sys.Name
	}
	return out
}
