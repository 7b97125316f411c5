package requirements

import "testing"

func TestBuildPlanOrdersBySpecificFields(t *testing.T) {
	store := testStore(t)
	plan := BuildPlan(store, []string{"impl-helpdesk", "ai-faq-bot"})

	if len(plan.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(plan.Services))
	}
	// ai-faq-bot carries 6 specific fields vs helpdesk's 4, so it comes
	// first even though it was purchased second.
	if plan.Services[0].ServiceID != "ai-faq-bot" {
		t.Fatalf("first service = %s, want ai-faq-bot", plan.Services[0].ServiceID)
	}
	if plan.Services[1].ServiceID != "impl-helpdesk" {
		t.Fatalf("second service = %s, want impl-helpdesk", plan.Services[1].ServiceID)
	}
}

func TestBuildPlanEstimates(t *testing.T) {
	store := testStore(t)
	plan := BuildPlan(store, []string{"impl-helpdesk", "ai-faq-bot"})

	// Both services see the 3 shared fields; 30 seconds per field.
	faq := plan.Services[0]
	if faq.SpecificFields != 6 || faq.SharedFields != 3 {
		t.Fatalf("faq counts = %d/%d, want 6/3", faq.SpecificFields, faq.SharedFields)
	}
	if faq.EstimateSeconds != 270 {
		t.Fatalf("faq estimate = %d, want 270", faq.EstimateSeconds)
	}
	hd := plan.Services[1]
	if hd.EstimateSeconds != 210 {
		t.Fatalf("helpdesk estimate = %d, want 210", hd.EstimateSeconds)
	}
	if plan.TotalSeconds != 480 {
		t.Fatalf("total = %d, want 480", plan.TotalSeconds)
	}
}

func TestBuildPlanTieKeepsPurchasedOrder(t *testing.T) {
	store := testStore(t)
	// impl-crm and ai-faq-bot share only crm_sync, leaving 8 specific
	// fields each. The tie is broken by purchase order.
	plan := BuildPlan(store, []string{"impl-crm", "ai-faq-bot"})
	if plan.Services[0].ServiceID != "impl-crm" {
		t.Fatalf("first service = %s, want impl-crm", plan.Services[0].ServiceID)
	}

	plan = BuildPlan(store, []string{"ai-faq-bot", "impl-crm"})
	if plan.Services[0].ServiceID != "ai-faq-bot" {
		t.Fatalf("first service = %s, want ai-faq-bot", plan.Services[0].ServiceID)
	}
}

func TestBuildPlanMinimumEstimate(t *testing.T) {
	store := testStore(t)
	plan := BuildPlan(store, []string{"impl-crm", "ai-faq-bot"})
	for _, sp := range plan.Services {
		if sp.EstimateSeconds < minimumServiceSeconds {
			t.Fatalf("%s estimate below floor: %d", sp.ServiceID, sp.EstimateSeconds)
		}
	}
}

func TestBuildPlanSkipsServicesWithoutTemplate(t *testing.T) {
	store := testStore(t)
	plan := BuildPlan(store, []string{"workshop-automation", "impl-crm"})
	if len(plan.Services) != 1 {
		t.Fatalf("services = %d, want 1", len(plan.Services))
	}
	if plan.Services[0].ServiceID != "impl-crm" {
		t.Fatalf("service = %s, want impl-crm", plan.Services[0].ServiceID)
	}
}

func TestBuildPlanEmpty(t *testing.T) {
	store := testStore(t)
	plan := BuildPlan(store, nil)
	if len(plan.Services) != 0 || plan.TotalSeconds != 0 {
		t.Fatalf("empty plan got %d services, total %d", len(plan.Services), plan.TotalSeconds)
	}
}
