package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"scopeline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertEngagement(ctx context.Context, tx *sql.Tx, e domain.Engagement) error {
	services, err := marshalStringSlice(e.PurchasedServices)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO engagements(id,client_name,phase,services_json,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.ClientName, string(e.Phase), services, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r Repo) GetEngagement(ctx context.Context, id string) (domain.Engagement, error) {
	return scanEngagement(r.DB.QueryRowContext(ctx, `SELECT id,client_name,phase,services_json,created_at,updated_at FROM engagements WHERE id=?`, id))
}

func (r Repo) SingleEngagement(ctx context.Context) (domain.Engagement, error) {
	items, err := r.ListEngagements(ctx)
	if err != nil {
		return domain.Engagement{}, err
	}
	if len(items) == 0 {
		return domain.Engagement{}, ErrNotFound
	}
	if len(items) > 1 {
		return domain.Engagement{}, fmt.Errorf("multiple engagements exist; specify --engagement")
	}
	return items[0], nil
}

func (r Repo) ListEngagements(ctx context.Context) ([]domain.Engagement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,client_name,phase,services_json,created_at,updated_at FROM engagements ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Engagement
	for rows.Next() {
		var e domain.Engagement
		var phase string
		var services sql.NullString
		if err := rows.Scan(&e.ID, &e.ClientName, &phase, &services, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Phase = domain.Phase(phase)
		e.PurchasedServices = decodeStringSlice(services)
		res = append(res, e)
	}
	return res, nil
}

func (r Repo) UpdateEngagement(ctx context.Context, tx *sql.Tx, e domain.Engagement) error {
	services, err := marshalStringSlice(e.PurchasedServices)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE engagements SET client_name=?, phase=?, services_json=?, updated_at=? WHERE id=?`,
		e.ClientName, string(e.Phase), services, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEngagement(row *sql.Row) (domain.Engagement, error) {
	var e domain.Engagement
	var phase string
	var services sql.NullString
	err := row.Scan(&e.ID, &e.ClientName, &phase, &services, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Phase = domain.Phase(phase)
	e.PurchasedServices = decodeStringSlice(services)
	return e, nil
}

func (r Repo) UpsertAnswerSet(ctx context.Context, tx *sql.Tx, a domain.AnswerSet) error {
	values, err := json.Marshal(a.Values)
	if err != nil {
		return fmt.Errorf("marshal answer values: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO answer_sets(engagement_id,service_id,values_json,created_at,updated_at,completed_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(engagement_id,service_id) DO UPDATE SET values_json=excluded.values_json, updated_at=excluded.updated_at, completed_at=excluded.completed_at`,
		a.EngagementID, a.ServiceID, string(values), a.CreatedAt, a.UpdatedAt, nullableStringPtr(a.CompletedAt))
	return err
}

func (r Repo) GetAnswerSet(ctx context.Context, engagementID, serviceID string) (domain.AnswerSet, error) {
	var a domain.AnswerSet
	var values string
	var completedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT engagement_id,service_id,values_json,created_at,updated_at,completed_at FROM answer_sets WHERE engagement_id=? AND service_id=?`, engagementID, serviceID).
		Scan(&a.EngagementID, &a.ServiceID, &values, &a.CreatedAt, &a.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(values), &a.Values); err != nil {
		return a, fmt.Errorf("decode answer values: %w", err)
	}
	if a.Values == nil {
		a.Values = map[string]any{}
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.String
	}
	return a, nil
}

func (r Repo) ListAnswerSets(ctx context.Context, engagementID string) ([]domain.AnswerSet, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT engagement_id,service_id,values_json,created_at,updated_at,completed_at FROM answer_sets WHERE engagement_id=? ORDER BY service_id`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AnswerSet
	for rows.Next() {
		var a domain.AnswerSet
		var values string
		var completedAt sql.NullString
		if err := rows.Scan(&a.EngagementID, &a.ServiceID, &values, &a.CreatedAt, &a.UpdatedAt, &completedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(values), &a.Values); err != nil {
			return nil, fmt.Errorf("decode answer values: %w", err)
		}
		if a.Values == nil {
			a.Values = map[string]any{}
		}
		if completedAt.Valid {
			a.CompletedAt = &completedAt.String
		}
		res = append(res, a)
	}
	return res, nil
}

// AnswerValuesByService returns every answer set's values keyed by service id,
// the shape the completion validator consumes.
func (r Repo) AnswerValuesByService(ctx context.Context, engagementID string) (map[string]map[string]any, error) {
	sets, err := r.ListAnswerSets(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(sets))
	for _, a := range sets {
		out[a.ServiceID] = a.Values
	}
	return out, nil
}

func (r Repo) UpsertMeetingRecord(ctx context.Context, tx *sql.Tx, m domain.MeetingRecord) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal meeting record: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO meeting_records(engagement_id,record_json,captured_at) VALUES (?,?,?)
ON CONFLICT(engagement_id) DO UPDATE SET record_json=excluded.record_json, captured_at=excluded.captured_at`,
		m.EngagementID, string(data), m.CapturedAt)
	return err
}

// GetMeetingRecord returns the meeting record, or an empty record when none
// was imported yet; upstream absence is never an error.
func (r Repo) GetMeetingRecord(ctx context.Context, engagementID string) (domain.MeetingRecord, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT record_json FROM meeting_records WHERE engagement_id=?`, engagementID).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.MeetingRecord{EngagementID: engagementID}, nil
	}
	if err != nil {
		return domain.MeetingRecord{}, err
	}
	var m domain.MeetingRecord
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return domain.MeetingRecord{}, fmt.Errorf("decode meeting record: %w", err)
	}
	m.EngagementID = engagementID
	return m, nil
}

func (r Repo) SetFlag(ctx context.Context, tx *sql.Tx, engagementID, name string, value bool, updatedAt string) error {
	v := 0
	if value {
		v = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO flags(engagement_id,name,value,updated_at) VALUES (?,?,?,?)
ON CONFLICT(engagement_id,name) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		engagementID, name, v, updatedAt)
	return err
}

func (r Repo) GetFlags(ctx context.Context, engagementID string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name,value FROM flags WHERE engagement_id=?`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]bool{}
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		res[name] = value != 0
	}
	return res, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, engagementID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if engagementID != "" {
		clauses = append(clauses, "engagement_id=?")
		args = append(args, engagementID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,engagement_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var engID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &engID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if engID.Valid {
			e.EngagementID = engID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

func marshalStringSlice(in []string) (any, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeStringSlice(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil
	}
	return out
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
