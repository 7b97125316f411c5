package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"scopeline/internal/db"
	"scopeline/internal/domain"
	"scopeline/internal/events"
	"scopeline/internal/migrate"
	"scopeline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, conn
}

func inTx(t *testing.T, conn *sql.DB, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := conn.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func seedEngagement(t *testing.T, r repo.Repo, conn *sql.DB, id string) domain.Engagement {
	t.Helper()
	eng := domain.Engagement{
		ID:         id,
		ClientName: "Acme GmbH",
		Phase:      domain.PhaseDiscovery,
		CreatedAt:  "2026-03-01T09:00:00Z",
		UpdatedAt:  "2026-03-01T09:00:00Z",
	}
	inTx(t, conn, func(tx *sql.Tx) error {
		return r.InsertEngagement(context.Background(), tx, eng)
	})
	return eng
}

func TestEngagementRoundTrip(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	eng := seedEngagement(t, r, conn, "eng-1")

	got, err := r.GetEngagement(ctx, eng.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ClientName != eng.ClientName || got.Phase != domain.PhaseDiscovery {
		t.Fatalf("got %+v", got)
	}
	if len(got.PurchasedServices) != 0 {
		t.Fatalf("purchased = %v, want empty", got.PurchasedServices)
	}

	got.PurchasedServices = []string{"impl-crm", "data-migration"}
	got.Phase = domain.PhaseAwaitingClientDecision
	inTx(t, conn, func(tx *sql.Tx) error {
		return r.UpdateEngagement(ctx, tx, got)
	})
	got, err = r.GetEngagement(ctx, eng.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != domain.PhaseAwaitingClientDecision || len(got.PurchasedServices) != 2 {
		t.Fatalf("after update: %+v", got)
	}
}

func TestGetEngagementNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	if _, err := r.GetEngagement(context.Background(), "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestSingleEngagement(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.SingleEngagement(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	seedEngagement(t, r, conn, "eng-1")
	got, err := r.SingleEngagement(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "eng-1" {
		t.Fatalf("id = %s", got.ID)
	}
	seedEngagement(t, r, conn, "eng-2")
	if _, err := r.SingleEngagement(ctx); err == nil {
		t.Fatal("ambiguous lookup should fail")
	}
}

func TestAnswerSetRoundTrip(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	eng := seedEngagement(t, r, conn, "eng-1")

	completed := "2026-03-01T10:00:00Z"
	set := domain.AnswerSet{
		EngagementID: eng.ID,
		ServiceID:    "impl-crm",
		Values:       map[string]any{"crm_preference": "hubspot", "seats": float64(12)},
		CreatedAt:    "2026-03-01T09:30:00Z",
		UpdatedAt:    "2026-03-01T10:00:00Z",
		CompletedAt:  &completed,
	}
	inTx(t, conn, func(tx *sql.Tx) error {
		return r.UpsertAnswerSet(ctx, tx, set)
	})

	got, err := r.GetAnswerSet(ctx, eng.ID, "impl-crm")
	if err != nil {
		t.Fatal(err)
	}
	if got.Values["crm_preference"] != "hubspot" || got.Values["seats"] != float64(12) {
		t.Fatalf("values = %v", got.Values)
	}
	if got.CompletedAt == nil || *got.CompletedAt != completed {
		t.Fatalf("completed_at = %v", got.CompletedAt)
	}

	// Upsert replaces values and can clear the completion stamp.
	set.Values = map[string]any{"crm_preference": "pipedrive"}
	set.CompletedAt = nil
	inTx(t, conn, func(tx *sql.Tx) error {
		return r.UpsertAnswerSet(ctx, tx, set)
	})
	got, err = r.GetAnswerSet(ctx, eng.ID, "impl-crm")
	if err != nil {
		t.Fatal(err)
	}
	if got.CompletedAt != nil || len(got.Values) != 1 {
		t.Fatalf("after upsert: %+v", got)
	}

	byService, err := r.AnswerValuesByService(ctx, eng.ID)
	if err != nil {
		t.Fatal(err)
	}
	if byService["impl-crm"]["crm_preference"] != "pipedrive" {
		t.Fatalf("by service = %v", byService)
	}
}

func TestMeetingRecordAbsenceIsEmpty(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	eng := seedEngagement(t, r, conn, "eng-1")

	m, err := r.GetMeetingRecord(ctx, eng.ID)
	if err != nil {
		t.Fatalf("absent record should not error: %v", err)
	}
	if m.EngagementID != eng.ID || len(m.Systems) != 0 {
		t.Fatalf("m = %+v", m)
	}

	m.Systems = []domain.SystemRecord{{Name: "Zendesk", Kind: "helpdesk", Key: "zendesk"}}
	m.CapturedAt = "2026-03-01T09:00:00Z"
	inTx(t, conn, func(tx *sql.Tx) error {
		return r.UpsertMeetingRecord(ctx, tx, m)
	})
	got, err := r.GetMeetingRecord(ctx, eng.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Systems) != 1 || got.Systems[0].Key != "zendesk" {
		t.Fatalf("got %+v", got)
	}
}

func TestFlags(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	eng := seedEngagement(t, r, conn, "eng-1")

	inTx(t, conn, func(tx *sql.Tx) error {
		return r.SetFlag(ctx, tx, eng.ID, domain.FlagClientApproved, true, "2026-03-01T09:00:00Z")
	})
	inTx(t, conn, func(tx *sql.Tx) error {
		return r.SetFlag(ctx, tx, eng.ID, domain.FlagClientApproved, false, "2026-03-01T10:00:00Z")
	})
	flags, err := r.GetFlags(ctx, eng.ID)
	if err != nil {
		t.Fatal(err)
	}
	if flags[domain.FlagClientApproved] {
		t.Fatal("flag should have been overwritten to false")
	}
}

func TestLatestEventsFilterAndLimit(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	eng := seedEngagement(t, r, conn, "eng-1")
	w := events.Writer{DB: conn}

	inTx(t, conn, func(tx *sql.Tx) error {
		for i := 0; i < 3; i++ {
			if err := w.Append(ctx, tx, "answers.recorded", eng.ID, "answer_set", "impl-crm", "tester", events.EventPayload{"fields": i}); err != nil {
				return err
			}
		}
		return w.Append(ctx, tx, "flag.set", eng.ID, "flag", "client_approved", "tester", nil)
	})

	evts, err := r.LatestEvents(ctx, 10, eng.ID, "answers.recorded")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 3 {
		t.Fatalf("filtered events = %d, want 3", len(evts))
	}
	evts, err = r.LatestEvents(ctx, 2, eng.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("limited events = %d, want 2", len(evts))
	}
	// Most recent first.
	if evts[0].ID < evts[1].ID {
		t.Fatalf("events not newest-first: %d before %d", evts[0].ID, evts[1].ID)
	}
}
