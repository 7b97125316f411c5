package domain

// Phase is the lifecycle position of an engagement. Transitions are governed
// exclusively by the phase gate; nothing else writes this value.
type Phase string

const (
	PhaseDiscovery              Phase = "discovery"
	PhaseAwaitingClientDecision Phase = "awaiting_client_decision"
	PhaseClientApproved         Phase = "client_approved"
	PhaseImplementationSpec     Phase = "implementation_spec"
	PhaseDevelopment            Phase = "development"
	PhaseCompleted              Phase = "completed"
)

// Phases lists all phases in lifecycle order.
var Phases = []Phase{
	PhaseDiscovery,
	PhaseAwaitingClientDecision,
	PhaseClientApproved,
	PhaseImplementationSpec,
	PhaseDevelopment,
	PhaseCompleted,
}

// ValidPhase reports whether p is a known phase value.
func ValidPhase(p Phase) bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

type Engagement struct {
	ID                string   `json:"id"`
	ClientName        string   `json:"client_name"`
	Phase             Phase    `json:"phase" enum:"discovery,awaiting_client_decision,client_approved,implementation_spec,development,completed"`
	PurchasedServices []string `json:"purchased_services,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

// AnswerSet holds the collected values for one (engagement, service) pair.
// Values are keyed by field id; unified fields still get their own copy per
// service, unification only affects suggestion ordering.
type AnswerSet struct {
	EngagementID string         `json:"engagement_id"`
	ServiceID    string         `json:"service_id"`
	Values       map[string]any `json:"values"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
	CompletedAt  *string        `json:"completed_at,omitempty" format:"date-time"`
}

// Flag names supplied by external business decisions.
const (
	FlagProposalSent    = "proposal_sent"
	FlagClientApproved  = "client_approved"
	FlagDevelopmentDone = "development_done"
)

// KnownFlag reports whether name is one of the recognized business flags.
func KnownFlag(name string) bool {
	switch name {
	case FlagProposalSent, FlagClientApproved, FlagDevelopmentDone:
		return true
	}
	return false
}

// SystemRecord is one entry of the discovery systems inventory.
type SystemRecord struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Key  string `json:"key,omitempty"`
}

type ROIFigures struct {
	MonthlyInquiries int     `json:"monthly_inquiries,omitempty"`
	AvgHandleMinutes float64 `json:"avg_handle_minutes,omitempty"`
	HourlyRate       float64 `json:"hourly_rate,omitempty"`
	LeadsPerMonth    int     `json:"leads_per_month,omitempty"`
}

// MeetingRecord is the accumulated discovery-phase record. It is read-only
// input to the prefill resolvers; the engine never writes it after import.
type MeetingRecord struct {
	EngagementID string            `json:"engagement_id"`
	Systems      []SystemRecord    `json:"systems,omitempty"`
	Channels     []string          `json:"channels,omitempty"`
	Services     []string          `json:"services,omitempty"`
	ROI          ROIFigures        `json:"roi"`
	Notes        map[string]string `json:"notes,omitempty"`
	CapturedAt   string            `json:"captured_at,omitempty" format:"date-time"`
}

// SystemOfKind returns the first inventoried system of the given kind.
func (m MeetingRecord) SystemOfKind(kind string) (SystemRecord, bool) {
	for _, s := range m.Systems {
		if s.Kind == kind {
			return s, true
		}
	}
	return SystemRecord{}, false
}

// Coverage scores discovery completeness in [0,1] over the topics the
// proposal needs: systems inventory, discussed services, ROI volume, goals,
// pain points and contact channels.
func (m MeetingRecord) Coverage() float64 {
	total, covered := 6, 0
	if len(m.Systems) > 0 {
		covered++
	}
	if len(m.Services) > 0 {
		covered++
	}
	if m.ROI.MonthlyInquiries > 0 || m.ROI.LeadsPerMonth > 0 {
		covered++
	}
	if m.Notes["goals"] != "" {
		covered++
	}
	if m.Notes["pain_points"] != "" {
		covered++
	}
	if len(m.Channels) > 0 {
		covered++
	}
	return float64(covered) / float64(total)
}

type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	EngagementID string `json:"engagement_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	ActorID      string `json:"actor_id"`
	Payload      string `json:"payload_json"`
}
