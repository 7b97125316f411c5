package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"scopeline/internal/config"
	"scopeline/internal/db"
	"scopeline/internal/domain"
	"scopeline/internal/engine"
	"scopeline/internal/migrate"
	"scopeline/internal/repo"
	"scopeline/internal/template"
)

func newTestEnv(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := template.NewStore(zerolog.Nop())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	eng := engine.New(conn, store, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return eng
}

func richMeeting() domain.MeetingRecord {
	return domain.MeetingRecord{
		Systems: []domain.SystemRecord{
			{Name: "HubSpot Starter", Kind: "crm", Key: "hubspot"},
		},
		Channels: []string{"email"},
		Services: []string{"impl-crm", "data-migration"},
		ROI:      domain.ROIFigures{MonthlyInquiries: 400, LeadsPerMonth: 50},
		Notes: map[string]string{
			"goals":       "single source of truth for customers",
			"pain_points": "data spread over five spreadsheets",
		},
	}
}

func mustCreate(t *testing.T, e engine.Engine) domain.Engagement {
	t.Helper()
	eng, err := e.CreateEngagement(context.Background(), "", "Acme GmbH", "tester")
	if err != nil {
		t.Fatalf("create engagement: %v", err)
	}
	return eng
}

func TestCreateEngagementDefaults(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	if eng.ID == "" {
		t.Fatal("no id generated")
	}
	if eng.Phase != domain.PhaseDiscovery {
		t.Fatalf("phase = %s, want discovery", eng.Phase)
	}
	if _, err := e.CreateEngagement(context.Background(), "", "", "tester"); err == nil {
		t.Fatal("empty client name accepted")
	}
}

func TestSetPurchasedServicesValidation(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()

	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"nope"}, "tester"); err == nil || !strings.Contains(err.Error(), "unknown service") {
		t.Fatalf("err = %v, want unknown service", err)
	}
	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"impl-crm", "impl-crm"}, "tester"); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("err = %v, want duplicate service", err)
	}
	got, err := e.SetPurchasedServices(ctx, eng.ID, []string{"impl-crm", "data-migration"}, "tester")
	if err != nil {
		t.Fatalf("set services: %v", err)
	}
	if len(got.PurchasedServices) != 2 {
		t.Fatalf("purchased = %v", got.PurchasedServices)
	}
}

func TestBeginServiceAppliesPrefill(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()

	if err := e.ImportMeeting(ctx, eng.ID, richMeeting(), "tester"); err != nil {
		t.Fatalf("import meeting: %v", err)
	}
	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"impl-crm"}, "tester"); err != nil {
		t.Fatal(err)
	}

	// An answer recorded before begin must survive the prefill merge.
	if _, err := e.RecordAnswers(ctx, eng.ID, "impl-crm", map[string]any{"crm_preference": "pipedrive"}, "tester"); err != nil {
		t.Fatalf("record answers: %v", err)
	}

	set, err := e.BeginService(ctx, eng.ID, "impl-crm", "tester")
	if err != nil {
		t.Fatalf("begin service: %v", err)
	}
	if set.Values["crm_preference"] != "pipedrive" {
		t.Fatalf("prefill overwrote an existing answer: %v", set.Values["crm_preference"])
	}
	if set.Values["existing_data"] != "yes_crm" {
		t.Fatalf("prefill missing: existing_data = %v", set.Values["existing_data"])
	}
	if set.Values["legacy_crm_name"] != "HubSpot Starter" {
		t.Fatalf("legacy_crm_name = %v", set.Values["legacy_crm_name"])
	}
}

func TestBeginServiceRejectsOutsidePurchase(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()

	if _, err := e.BeginService(ctx, eng.ID, "impl-crm", "tester"); err == nil {
		t.Fatal("began a service outside the purchased set")
	}
	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"workshop-automation"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.BeginService(ctx, eng.ID, "workshop-automation", "tester"); err == nil || !strings.Contains(err.Error(), "no technical specification") {
		t.Fatalf("err = %v, want no-spec refusal", err)
	}
}

func TestRecordAnswersCompletionStamp(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()
	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"data-migration"}, "tester"); err != nil {
		t.Fatal(err)
	}

	set, err := e.RecordAnswers(ctx, eng.ID, "data-migration", map[string]any{
		"existing_data": "no",
		"cutover_date":  "2026-09-01",
	}, "tester")
	if err != nil {
		t.Fatalf("record answers: %v", err)
	}
	if set.CompletedAt == nil {
		t.Fatal("completed set not stamped")
	}

	// Switching existing_data reveals two more required fields, reopening
	// the specification.
	set, err = e.RecordAnswers(ctx, eng.ID, "data-migration", map[string]any{"existing_data": "yes_crm"}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if set.CompletedAt != nil {
		t.Fatal("reopened set still stamped complete")
	}

	// A nil value clears the field again.
	set, err = e.RecordAnswers(ctx, eng.ID, "data-migration", map[string]any{
		"existing_data": "no",
		"record_count":  nil,
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set.Values["record_count"]; ok {
		t.Fatal("nil value did not clear the field")
	}
	if set.CompletedAt == nil {
		t.Fatal("set should be complete again")
	}
}

func TestRecordAnswersUnknownField(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()
	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"impl-crm"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.RecordAnswers(ctx, eng.ID, "impl-crm", map[string]any{"bogus": "x"}, "tester"); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("err = %v, want unknown field", err)
	}
}

func TestSetFlagValidation(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	if err := e.SetFlag(context.Background(), eng.ID, "not_a_flag", true, "tester"); err == nil {
		t.Fatal("unknown flag accepted")
	}
	if err := e.SetFlag(context.Background(), eng.ID, domain.FlagClientApproved, true, "tester"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()

	// Discovery is gated on meeting coverage.
	if _, err := e.AdvancePhase(ctx, eng.ID, domain.PhaseAwaitingClientDecision, "tester"); !errors.Is(err, engine.ErrTransitionBlocked) {
		t.Fatalf("err = %v, want transition blocked", err)
	}
	if err := e.ImportMeeting(ctx, eng.ID, richMeeting(), "tester"); err != nil {
		t.Fatal(err)
	}
	eng, err := e.AdvancePhase(ctx, eng.ID, domain.PhaseAwaitingClientDecision, "tester")
	if err != nil {
		t.Fatalf("advance to awaiting: %v", err)
	}

	// Approval needs the client_approved flag.
	if _, err := e.AdvancePhase(ctx, eng.ID, domain.PhaseClientApproved, "tester"); !errors.Is(err, engine.ErrTransitionBlocked) {
		t.Fatalf("err = %v, want transition blocked", err)
	}
	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"data-migration"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetFlag(ctx, eng.ID, domain.FlagClientApproved, true, "tester"); err != nil {
		t.Fatal(err)
	}
	if eng, err = e.AdvancePhase(ctx, eng.ID, domain.PhaseClientApproved, "tester"); err != nil {
		t.Fatal(err)
	}
	if eng, err = e.AdvancePhase(ctx, eng.ID, domain.PhaseImplementationSpec, "tester"); err != nil {
		t.Fatal(err)
	}

	// The purchased set is frozen from here on.
	if _, err := e.SetPurchasedServices(ctx, eng.ID, []string{"impl-crm"}, "tester"); err == nil || !strings.Contains(err.Error(), "frozen") {
		t.Fatalf("err = %v, want frozen set", err)
	}

	// Development is blocked until every specification is complete.
	_, err = e.AdvancePhase(ctx, eng.ID, domain.PhaseDevelopment, "tester")
	if !errors.Is(err, engine.ErrTransitionBlocked) {
		t.Fatalf("err = %v, want transition blocked", err)
	}
	if !strings.Contains(err.Error(), "required fields") {
		t.Fatalf("blocked message = %v, want missing-field count", err)
	}
	if _, err := e.RecordAnswers(ctx, eng.ID, "data-migration", map[string]any{
		"existing_data": "yes_crm",
		"source_system": "HubSpot Starter",
		"record_count":  float64(5000),
		"cutover_date":  "2026-10-01",
	}, "tester"); err != nil {
		t.Fatal(err)
	}
	if eng, err = e.AdvancePhase(ctx, eng.ID, domain.PhaseDevelopment, "tester"); err != nil {
		t.Fatal(err)
	}

	// completed needs the development_done flag.
	if _, err := e.AdvancePhase(ctx, eng.ID, domain.PhaseCompleted, "tester"); !errors.Is(err, engine.ErrTransitionBlocked) {
		t.Fatalf("err = %v, want transition blocked", err)
	}
	if err := e.SetFlag(ctx, eng.ID, domain.FlagDevelopmentDone, true, "tester"); err != nil {
		t.Fatal(err)
	}
	if eng, err = e.AdvancePhase(ctx, eng.ID, domain.PhaseCompleted, "tester"); err != nil {
		t.Fatal(err)
	}
	if eng.Phase != domain.PhaseCompleted {
		t.Fatalf("phase = %s, want completed", eng.Phase)
	}

	// Terminal.
	if _, err := e.AdvancePhase(ctx, eng.ID, domain.PhaseDiscovery, "tester"); !errors.Is(err, engine.ErrTransitionBlocked) {
		t.Fatalf("err = %v, want transition blocked", err)
	}
}

func TestBacktrackEmitsBacktrackEvent(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()

	if err := e.ImportMeeting(ctx, eng.ID, richMeeting(), "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AdvancePhase(ctx, eng.ID, domain.PhaseAwaitingClientDecision, "tester"); err != nil {
		t.Fatal(err)
	}
	got, err := e.Backtrack(ctx, eng.ID, "tester")
	if err != nil {
		t.Fatalf("backtrack: %v", err)
	}
	if got.Phase != domain.PhaseDiscovery {
		t.Fatalf("phase = %s, want discovery", got.Phase)
	}
	evts, err := e.Repo.LatestEvents(ctx, 10, eng.ID, "phase.backtracked")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 {
		t.Fatalf("backtrack events = %d, want 1", len(evts))
	}
}

func TestCanTransitionToDoesNotMutate(t *testing.T) {
	e := newTestEnv(t)
	eng := mustCreate(t, e)
	ctx := context.Background()

	ok, err := e.CanTransitionTo(ctx, eng.ID, domain.PhaseAwaitingClientDecision)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("empty engagement should not be ready to advance")
	}
	got, err := e.Repo.GetEngagement(ctx, eng.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != domain.PhaseDiscovery {
		t.Fatalf("phase changed to %s", got.Phase)
	}
}

func TestNotFoundFlowsThrough(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.Plan(context.Background(), "missing")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}
