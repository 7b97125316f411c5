package server

import (
	"encoding/json"

	"scopeline/internal/domain"
	"scopeline/internal/requirements"
	"scopeline/internal/template"
)

type CreateEngagementRequest struct {
	ID         string `json:"id,omitempty"`
	ClientName string `json:"client_name"`
}

type EngagementResponse struct {
	ID                string   `json:"id"`
	ClientName        string   `json:"client_name"`
	Phase             string   `json:"phase"`
	PurchasedServices []string `json:"purchased_services"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

type SetServicesRequest struct {
	Services []string `json:"services"`
}

type MeetingRequest struct {
	Systems    []SystemRequest    `json:"systems,omitempty"`
	Services   []string           `json:"services,omitempty"`
	ROI        *ROIRequest        `json:"roi,omitempty"`
	Notes      map[string]string  `json:"notes,omitempty"`
	Channels   []string           `json:"channels,omitempty"`
	CapturedAt string             `json:"captured_at,omitempty"`
}

type SystemRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Key  string `json:"key,omitempty"`
}

type ROIRequest struct {
	MonthlyInquiries int     `json:"monthly_inquiries,omitempty"`
	AvgHandleMinutes float64 `json:"avg_handle_minutes,omitempty"`
	HourlyRate       float64 `json:"hourly_rate,omitempty"`
	LeadsPerMonth    int     `json:"leads_per_month,omitempty"`
}

type MeetingResponse struct {
	MeetingRequest
	Coverage float64 `json:"coverage"`
}

type AnswerSetResponse struct {
	ServiceID   string                  `json:"service_id"`
	Values      map[string]any          `json:"values"`
	Missing     []string                `json:"missing_required"`
	Complete    bool                    `json:"complete"`
	CompletedAt *string                 `json:"completed_at,omitempty"`
	UpdatedAt   string                  `json:"updated_at"`
}

type RecordAnswersRequest struct {
	Values map[string]any `json:"values"`
}

type PlanResponse struct {
	Services     []PlanServiceResponse `json:"services"`
	TotalSeconds int                   `json:"total_seconds"`
}

type PlanServiceResponse struct {
	ServiceID       string `json:"service_id"`
	Title           string `json:"title"`
	SpecificFields  int    `json:"specific_fields"`
	SharedFields    int    `json:"shared_fields"`
	EstimateSeconds int    `json:"estimate_seconds"`
}

type UnificationResponse struct {
	Shared   []SharedFieldResponse       `json:"shared"`
	Specific map[string][]FieldResponse  `json:"service_specific"`
}

type SharedFieldResponse struct {
	FieldID    string   `json:"field_id"`
	Kind       string   `json:"kind"`
	Label      string   `json:"label"`
	Services   []string `json:"services"`
	Confidence float64  `json:"confidence"`
}

type FieldResponse struct {
	FieldID string `json:"field_id"`
	Kind    string `json:"kind"`
	Label   string `json:"label"`
}

type StatusResponse struct {
	EngagementID string                  `json:"engagement_id"`
	Phase        string                  `json:"phase"`
	Percent      float64                 `json:"completion_percent"`
	Services     []ServiceStatusResponse `json:"services"`
	NextPhases   []string                `json:"next_phases"`
}

type ServiceStatusResponse struct {
	ServiceID        string   `json:"service_id"`
	AnsweredRequired int      `json:"answered_required"`
	TotalRequired    int      `json:"total_required"`
	Percent          float64  `json:"percent"`
	Complete         bool     `json:"complete"`
	Missing          []string `json:"missing_required"`
}

type PhaseRequest struct {
	Target string `json:"target"`
}

type FlagRequest struct {
	Value bool `json:"value"`
}

type EventResponse struct {
	ID           int64          `json:"id"`
	Timestamp    string         `json:"ts"`
	Type         string         `json:"type"`
	EngagementID string         `json:"engagement_id"`
	EntityKind   string         `json:"entity_kind"`
	EntityID     string         `json:"entity_id"`
	ActorID      string         `json:"actor_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

type TemplateSummaryResponse struct {
	ServiceID     string `json:"service_id"`
	Title         string `json:"title"`
	Fields        int    `json:"fields"`
	RequiredCount int    `json:"required"`
}

type LintIssueResponse struct {
	ServiceID string `json:"service_id,omitempty"`
	SectionID string `json:"section_id,omitempty"`
	FieldID   string `json:"field_id,omitempty"`
	Message   string `json:"message"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func engagementResponse(e domain.Engagement) EngagementResponse {
	return EngagementResponse{
		ID:                e.ID,
		ClientName:        e.ClientName,
		Phase:             string(e.Phase),
		PurchasedServices: nonNilSlice(e.PurchasedServices),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func meetingFromRequest(in MeetingRequest) domain.MeetingRecord {
	m := domain.MeetingRecord{
		Services:   in.Services,
		Notes:      in.Notes,
		Channels:   in.Channels,
		CapturedAt: in.CapturedAt,
	}
	for _, s := range in.Systems {
		m.Systems = append(m.Systems, domain.SystemRecord{Name: s.Name, Kind: s.Kind, Key: s.Key})
	}
	if in.ROI != nil {
		m.ROI = domain.ROIFigures{
			MonthlyInquiries: in.ROI.MonthlyInquiries,
			AvgHandleMinutes: in.ROI.AvgHandleMinutes,
			HourlyRate:       in.ROI.HourlyRate,
			LeadsPerMonth:    in.ROI.LeadsPerMonth,
		}
	}
	return m
}

func meetingResponse(m domain.MeetingRecord) MeetingResponse {
	out := MeetingResponse{
		MeetingRequest: MeetingRequest{
			Services:   nonNilSlice(m.Services),
			Notes:      m.Notes,
			Channels:   nonNilSlice(m.Channels),
			CapturedAt: m.CapturedAt,
		},
		Coverage: m.Coverage(),
	}
	for _, s := range m.Systems {
		out.Systems = append(out.Systems, SystemRequest{Name: s.Name, Kind: s.Kind, Key: s.Key})
	}
	if m.ROI != (domain.ROIFigures{}) {
		out.ROI = &ROIRequest{
			MonthlyInquiries: m.ROI.MonthlyInquiries,
			AvgHandleMinutes: m.ROI.AvgHandleMinutes,
			HourlyRate:       m.ROI.HourlyRate,
			LeadsPerMonth:    m.ROI.LeadsPerMonth,
		}
	}
	return out
}

func answerSetResponse(set domain.AnswerSet, tpl *template.Template) AnswerSetResponse {
	missing := requirements.MissingRequired(tpl, set.Values)
	refs := make([]string, 0, len(missing))
	for _, ref := range missing {
		refs = append(refs, ref.String())
	}
	vals := set.Values
	if vals == nil {
		vals = map[string]any{}
	}
	return AnswerSetResponse{
		ServiceID:   set.ServiceID,
		Values:      vals,
		Missing:     refs,
		Complete:    set.CompletedAt != nil,
		CompletedAt: set.CompletedAt,
		UpdatedAt:   set.UpdatedAt,
	}
}

func planResponse(p requirements.Plan) PlanResponse {
	out := PlanResponse{Services: []PlanServiceResponse{}, TotalSeconds: p.TotalSeconds}
	for _, s := range p.Services {
		out.Services = append(out.Services, PlanServiceResponse{
			ServiceID:       s.ServiceID,
			Title:           s.Title,
			SpecificFields:  s.SpecificFields,
			SharedFields:    s.SharedFields,
			EstimateSeconds: s.EstimateSeconds,
		})
	}
	return out
}

func unificationResponse(p requirements.Partition) UnificationResponse {
	out := UnificationResponse{
		Shared:   []SharedFieldResponse{},
		Specific: map[string][]FieldResponse{},
	}
	for _, sh := range p.Shared {
		out.Shared = append(out.Shared, SharedFieldResponse{
			FieldID:    sh.Identity.FieldID,
			Kind:       string(sh.Identity.Kind),
			Label:      sh.Entry.Definition.Label,
			Services:   nonNilSlice(sh.Entry.OwningServices),
			Confidence: sh.Confidence,
		})
	}
	for serviceID, entries := range p.ServiceSpecific {
		fields := make([]FieldResponse, 0, len(entries))
		for _, e := range entries {
			fields = append(fields, FieldResponse{
				FieldID: e.Definition.ID,
				Kind:    string(e.Definition.Kind),
				Label:   e.Definition.Label,
			})
		}
		out.Specific[serviceID] = fields
	}
	return out
}

func statusResponse(eng domain.Engagement, status requirements.EngagementStatus, next []domain.Phase) StatusResponse {
	out := StatusResponse{
		EngagementID: eng.ID,
		Phase:        string(eng.Phase),
		Percent:      status.Percent,
		Services:     []ServiceStatusResponse{},
		NextPhases:   []string{},
	}
	for _, st := range status.Services {
		refs := make([]string, 0, len(st.Missing))
		for _, ref := range st.Missing {
			refs = append(refs, ref.String())
		}
		out.Services = append(out.Services, ServiceStatusResponse{
			ServiceID:        st.ServiceID,
			AnsweredRequired: st.AnsweredRequired,
			TotalRequired:    st.TotalRequired,
			Percent:          st.Percent,
			Complete:         st.Complete,
			Missing:          refs,
		})
	}
	for _, p := range next {
		out.NextPhases = append(out.NextPhases, string(p))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:           e.ID,
		Timestamp:    e.TS,
		Type:         e.Type,
		EngagementID: e.EngagementID,
		EntityKind:   e.EntityKind,
		EntityID:     e.EntityID,
		ActorID:      e.ActorID,
		Payload:      decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
