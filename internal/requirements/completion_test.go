package requirements

import (
	"testing"

	"scopeline/internal/template"
)

func TestVisibleConditions(t *testing.T) {
	store := testStore(t)
	tpl := store.Get("data-migration")
	if tpl == nil {
		t.Fatal("data-migration template missing")
	}
	sec, field, ok := tpl.SectionOf("source_system")
	if !ok {
		t.Fatal("source_system not found")
	}

	if Visible(sec, field, nil) {
		t.Fatal("dependent field visible with no answers")
	}
	if Visible(sec, field, map[string]any{"existing_data": "no"}) {
		t.Fatal("visible with non-matching condition value")
	}
	if !Visible(sec, field, map[string]any{"existing_data": "yes_crm"}) {
		t.Fatal("hidden despite matching condition value")
	}
	if !Visible(sec, field, map[string]any{"existing_data": "yes_spreadsheet"}) {
		t.Fatal("hidden despite second matching value")
	}
}

func TestVisibleFailsClosedOnForeignSection(t *testing.T) {
	sec := template.Section{
		ID: "a",
		Fields: []template.Field{
			{ID: "child", Kind: template.KindText, DependsOn: &template.Condition{FieldID: "elsewhere", Values: []string{"x"}}},
		},
	}
	if Visible(sec, sec.Fields[0], map[string]any{"elsewhere": "x"}) {
		t.Fatal("condition on a field outside the section must hide the field")
	}
}

func TestAnsweredPerKind(t *testing.T) {
	cases := []struct {
		kind template.Kind
		v    any
		want bool
	}{
		{template.KindText, nil, false},
		{template.KindText, "", false},
		{template.KindText, "hello", true},
		{template.KindNumber, float64(0), true},
		{template.KindCheckbox, false, true},
		{template.KindCheckbox, true, true},
		{template.KindCheckbox, "yes", false},
		{template.KindList, []any{}, false},
		{template.KindList, []any{"a"}, true},
		{template.KindMultiselect, []string{}, false},
		{template.KindMultiselect, []string{"web"}, true},
		{template.KindSelect, "option", true},
	}
	for _, c := range cases {
		if got := Answered(c.kind, c.v); got != c.want {
			t.Errorf("Answered(%s, %#v) = %v, want %v", c.kind, c.v, got, c.want)
		}
	}
}

func TestMissingRequiredRespectsVisibility(t *testing.T) {
	store := testStore(t)
	tpl := store.Get("data-migration")

	// With nothing answered only the two unconditionally visible required
	// fields count.
	missing := MissingRequired(tpl, nil)
	if len(missing) != 2 {
		t.Fatalf("missing = %v, want 2 entries", missing)
	}
	ids := map[string]bool{}
	for _, ref := range missing {
		ids[ref.FieldID] = true
	}
	if !ids["existing_data"] || !ids["cutover_date"] {
		t.Fatalf("missing = %v, want existing_data and cutover_date", missing)
	}

	// Answering existing_data=yes_crm reveals two more required fields.
	missing = MissingRequired(tpl, map[string]any{"existing_data": "yes_crm"})
	if len(missing) != 3 {
		t.Fatalf("missing = %v, want 3 entries", missing)
	}
}

func TestMissingRequiredNilTemplate(t *testing.T) {
	missing := MissingRequired(nil, nil)
	if missing == nil || len(missing) != 0 {
		t.Fatalf("missing = %#v, want empty non-nil slice", missing)
	}
}

func TestServiceCompletionProgress(t *testing.T) {
	store := testStore(t)
	tpl := store.Get("data-migration")

	st := ServiceCompletion(tpl, map[string]any{"existing_data": "yes_crm"})
	if st.TotalRequired != 4 || st.AnsweredRequired != 1 {
		t.Fatalf("required = %d/%d, want 1/4", st.AnsweredRequired, st.TotalRequired)
	}
	if st.Complete {
		t.Fatal("incomplete service reported complete")
	}

	st = ServiceCompletion(tpl, map[string]any{
		"existing_data": "yes_crm",
		"source_system": "Legacy CRM",
		"record_count":  float64(1200),
		"cutover_date":  "2026-10-01",
	})
	if !st.Complete || st.Percent != 100 {
		t.Fatalf("complete service reported %v at %.0f%%", st.Complete, st.Percent)
	}
}

func TestServiceCompletionVacuous(t *testing.T) {
	tpl := &template.Template{ServiceID: "empty", Title: "Empty"}
	st := ServiceCompletion(tpl, nil)
	if !st.Complete || st.Percent != 100 {
		t.Fatalf("template without required fields should be vacuously complete, got %v at %.0f%%", st.Complete, st.Percent)
	}
}

func TestEngagementCompletionSkipsNoTemplateServices(t *testing.T) {
	store := testStore(t)
	agg := EngagementCompletion(store, []string{"workshop-automation", "data-migration"}, map[string]map[string]any{
		"data-migration": {
			"existing_data": "no",
			"cutover_date":  "2026-10-01",
		},
	})
	if agg.SpecServices != 1 {
		t.Fatalf("spec services = %d, want 1", agg.SpecServices)
	}
	if agg.CompleteServices != 1 || agg.Percent != 100 {
		t.Fatalf("complete = %d, percent = %.0f, want 1 and 100", agg.CompleteServices, agg.Percent)
	}
}

func TestEngagementCompletionNoSpecServices(t *testing.T) {
	store := testStore(t)
	agg := EngagementCompletion(store, []string{"workshop-automation"}, nil)
	if agg.SpecServices != 0 || agg.Percent != 100 {
		t.Fatalf("got %d services at %.0f%%, want 0 at 100", agg.SpecServices, agg.Percent)
	}
}
