package requirements

import (
	"sort"

	"scopeline/internal/template"
)

// Planner heuristics: ~30 seconds per field, at least one minute per service.
const (
	secondsPerField       = 30
	minimumServiceSeconds = 60
)

// ServicePlan is the recommended collection slot for one service.
type ServicePlan struct {
	ServiceID       string `json:"service_id"`
	Title           string `json:"title"`
	SpecificFields  int    `json:"specific_fields"`
	SharedFields    int    `json:"shared_fields"`
	EstimateSeconds int    `json:"estimate_seconds"`
}

// Plan orders services for data entry and estimates the effort. The order is
// advisory; nothing enforces it.
type Plan struct {
	Services     []ServicePlan `json:"services"`
	TotalSeconds int           `json:"total_seconds"`
}

// BuildPlan recommends a visitation order: services carrying the most
// service-specific fields first, so shared answers accumulate early and later
// services open mostly prefilled. Ties keep purchased-list order.
func BuildPlan(store *template.Store, purchased []string) Plan {
	catalog := BuildCatalog(store, purchased)
	part := Unify(catalog)

	var plan Plan
	inputPos := map[string]int{}
	for i, id := range purchased {
		inputPos[id] = i
	}
	for _, serviceID := range purchased {
		tpl := store.Get(serviceID)
		if tpl == nil {
			continue
		}
		sp := ServicePlan{
			ServiceID:      serviceID,
			Title:          tpl.Title,
			SpecificFields: part.SpecificCount(serviceID),
			SharedFields:   part.SharedCountFor(serviceID),
		}
		sp.EstimateSeconds = estimateSeconds(sp.SpecificFields + sp.SharedFields)
		plan.Services = append(plan.Services, sp)
		plan.TotalSeconds += sp.EstimateSeconds
	}
	sort.SliceStable(plan.Services, func(i, j int) bool {
		a, b := plan.Services[i], plan.Services[j]
		if a.SpecificFields != b.SpecificFields {
			return a.SpecificFields > b.SpecificFields
		}
		return inputPos[a.ServiceID] < inputPos[b.ServiceID]
	})
	return plan
}

func estimateSeconds(fieldCount int) int {
	est := fieldCount * secondsPerField
	if est < minimumServiceSeconds {
		return minimumServiceSeconds
	}
	return est
}
