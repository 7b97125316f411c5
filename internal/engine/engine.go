package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scopeline/internal/config"
	"scopeline/internal/domain"
	"scopeline/internal/events"
	"scopeline/internal/phase"
	"scopeline/internal/repo"
	"scopeline/internal/requirements"
	"scopeline/internal/template"
)

// ErrTransitionBlocked marks a phase transition the gate refused. The wrapped
// message names what is missing; callers surface it, they never bypass it.
var ErrTransitionBlocked = errors.New("transition blocked")

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Store   *template.Store
	Prefill *requirements.Registry
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, store *template.Store, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Store:   store,
		Prefill: requirements.NewRegistry(),
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateEngagement starts a new engagement in the discovery phase.
func (e Engine) CreateEngagement(ctx context.Context, id, clientName, actorID string) (domain.Engagement, error) {
	if e.Config == nil {
		return domain.Engagement{}, errors.New("config not loaded")
	}
	if clientName == "" {
		return domain.Engagement{}, errors.New("client name is required")
	}
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowStr()
	eng := domain.Engagement{
		ID:         id,
		ClientName: clientName,
		Phase:      domain.PhaseDiscovery,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Engagement{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEngagement(ctx, tx, eng); err != nil {
		return domain.Engagement{}, fmt.Errorf("insert engagement: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "engagement.created", eng.ID, "engagement", eng.ID, actorID, events.EventPayload{"client_name": clientName}); err != nil {
		return domain.Engagement{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Engagement{}, err
	}
	return eng, nil
}

// ImportMeeting stores the discovery meeting record. Re-import replaces the
// previous record; collected answers are untouched.
func (e Engine) ImportMeeting(ctx context.Context, engagementID string, m domain.MeetingRecord, actorID string) error {
	if _, err := e.Repo.GetEngagement(ctx, engagementID); err != nil {
		return err
	}
	m.EngagementID = engagementID
	if m.CapturedAt == "" {
		m.CapturedAt = e.nowStr()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertMeetingRecord(ctx, tx, m); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "meeting.imported", engagementID, "meeting", engagementID, actorID, events.EventPayload{
		"coverage": m.Coverage(),
		"systems":  len(m.Systems),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPurchasedServices replaces the committed service set. The set is frozen
// once the engagement reaches implementation_spec; changing it afterwards is
// a logic error surfaced here.
func (e Engine) SetPurchasedServices(ctx context.Context, engagementID string, serviceIDs []string, actorID string) (domain.Engagement, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return eng, err
	}
	if phaseAtLeast(eng.Phase, domain.PhaseImplementationSpec) {
		return eng, fmt.Errorf("purchased services are frozen once the engagement reaches %s", domain.PhaseImplementationSpec)
	}
	seen := map[string]bool{}
	for _, sid := range serviceIDs {
		if _, ok := e.Config.Service(sid); !ok {
			return eng, fmt.Errorf("unknown service %s", sid)
		}
		if seen[sid] {
			return eng, fmt.Errorf("duplicate service %s", sid)
		}
		seen[sid] = true
	}
	eng.PurchasedServices = serviceIDs
	eng.UpdatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return eng, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateEngagement(ctx, tx, eng); err != nil {
		return eng, err
	}
	if err := e.Events.Append(ctx, tx, "services.set", eng.ID, "engagement", eng.ID, actorID, events.EventPayload{"services": serviceIDs}); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, err
	}
	return eng, nil
}

// BeginService opens the requirements flow for one purchased service: it
// creates the answer set if needed and merges prefill underneath whatever has
// been collected already. Prefill never overwrites an existing answer.
func (e Engine) BeginService(ctx context.Context, engagementID, serviceID, actorID string) (domain.AnswerSet, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return domain.AnswerSet{}, err
	}
	if !containsString(eng.PurchasedServices, serviceID) {
		return domain.AnswerSet{}, fmt.Errorf("service %s is not in the purchased set", serviceID)
	}
	if e.Store.Get(serviceID) == nil {
		return domain.AnswerSet{}, fmt.Errorf("service %s requires no technical specification", serviceID)
	}
	now := e.nowStr()
	set, err := e.Repo.GetAnswerSet(ctx, engagementID, serviceID)
	if errors.Is(err, repo.ErrNotFound) {
		set = domain.AnswerSet{
			EngagementID: engagementID,
			ServiceID:    serviceID,
			Values:       map[string]any{},
			CreatedAt:    now,
		}
	} else if err != nil {
		return domain.AnswerSet{}, err
	}

	meeting, err := e.Repo.GetMeetingRecord(ctx, engagementID)
	if err != nil {
		return domain.AnswerSet{}, err
	}
	prefill := e.Prefill.Resolve(serviceID, meeting)
	var applied []string
	for k := range prefill {
		if _, exists := set.Values[k]; !exists {
			applied = append(applied, k)
		}
	}
	set.Values = requirements.Merge(set.Values, prefill)
	set.UpdatedAt = now
	e.stampCompletion(&set)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return set, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAnswerSet(ctx, tx, set); err != nil {
		return set, err
	}
	if err := e.Events.Append(ctx, tx, "service.begun", eng.ID, "answer_set", serviceID, actorID, events.EventPayload{"service_id": serviceID}); err != nil {
		return set, err
	}
	if len(applied) > 0 {
		if err := e.Events.Append(ctx, tx, "prefill.applied", eng.ID, "answer_set", serviceID, actorID, events.EventPayload{"fields": applied}); err != nil {
			return set, err
		}
	}
	if err := tx.Commit(); err != nil {
		return set, err
	}
	return set, nil
}

// RecordAnswers upserts collected values field-by-field. A nil value clears a
// field. CompletedAt is stamped when the service reaches zero missing
// required fields and cleared again if an edit reopens one.
func (e Engine) RecordAnswers(ctx context.Context, engagementID, serviceID string, values map[string]any, actorID string) (domain.AnswerSet, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return domain.AnswerSet{}, err
	}
	if !containsString(eng.PurchasedServices, serviceID) {
		return domain.AnswerSet{}, fmt.Errorf("service %s is not in the purchased set", serviceID)
	}
	tpl := e.Store.Get(serviceID)
	if tpl == nil {
		return domain.AnswerSet{}, fmt.Errorf("service %s requires no technical specification", serviceID)
	}
	now := e.nowStr()
	set, err := e.Repo.GetAnswerSet(ctx, engagementID, serviceID)
	if errors.Is(err, repo.ErrNotFound) {
		set = domain.AnswerSet{
			EngagementID: engagementID,
			ServiceID:    serviceID,
			Values:       map[string]any{},
			CreatedAt:    now,
		}
	} else if err != nil {
		return domain.AnswerSet{}, err
	}
	for fieldID, v := range values {
		if _, _, ok := tpl.SectionOf(fieldID); !ok {
			return set, fmt.Errorf("unknown field %s for service %s", fieldID, serviceID)
		}
		if v == nil {
			delete(set.Values, fieldID)
			continue
		}
		set.Values[fieldID] = v
	}
	set.UpdatedAt = now
	wasComplete := set.CompletedAt != nil
	e.stampCompletion(&set)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return set, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAnswerSet(ctx, tx, set); err != nil {
		return set, err
	}
	if err := e.Events.Append(ctx, tx, "answers.recorded", eng.ID, "answer_set", serviceID, actorID, events.EventPayload{"fields": len(values)}); err != nil {
		return set, err
	}
	if !wasComplete && set.CompletedAt != nil {
		if err := e.Events.Append(ctx, tx, "service.completed", eng.ID, "answer_set", serviceID, actorID, events.EventPayload{"service_id": serviceID}); err != nil {
			return set, err
		}
	}
	if err := tx.Commit(); err != nil {
		return set, err
	}
	return set, nil
}

func (e Engine) stampCompletion(set *domain.AnswerSet) {
	tpl := e.Store.Get(set.ServiceID)
	missing := requirements.MissingRequired(tpl, set.Values)
	if len(missing) == 0 {
		if set.CompletedAt == nil {
			ts := e.nowStr()
			set.CompletedAt = &ts
		}
		return
	}
	set.CompletedAt = nil
}

// SetFlag records an externally-decided business flag.
func (e Engine) SetFlag(ctx context.Context, engagementID, name string, value bool, actorID string) error {
	if !domain.KnownFlag(name) {
		return fmt.Errorf("unknown flag %s", name)
	}
	if _, err := e.Repo.GetEngagement(ctx, engagementID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetFlag(ctx, tx, engagementID, name, value, e.nowStr()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "flag.set", engagementID, "flag", name, actorID, events.EventPayload{"name": name, "value": value}); err != nil {
		return err
	}
	return tx.Commit()
}

// GateInputs assembles fresh guard facts for the phase gate. It is invoked on
// every transition attempt; the result must not be cached because completion
// changes independently of phase requests.
func (e Engine) GateInputs(ctx context.Context, eng domain.Engagement) (phase.Inputs, error) {
	meeting, err := e.Repo.GetMeetingRecord(ctx, eng.ID)
	if err != nil {
		return phase.Inputs{}, err
	}
	flags, err := e.Repo.GetFlags(ctx, eng.ID)
	if err != nil {
		return phase.Inputs{}, err
	}
	answers, err := e.Repo.AnswerValuesByService(ctx, eng.ID)
	if err != nil {
		return phase.Inputs{}, err
	}
	sets, err := e.Repo.ListAnswerSets(ctx, eng.ID)
	if err != nil {
		return phase.Inputs{}, err
	}
	completed := map[string]bool{}
	for _, s := range sets {
		completed[s.ServiceID] = s.CompletedAt != nil
	}

	in := phase.Inputs{
		DiscoveryCoverage: meeting.Coverage(),
		ReadyThreshold:    e.Config.Discovery.ReadyThreshold,
		PurchasedServices: eng.PurchasedServices,
		AnswerSetComplete: completed,
		ClientApproved:    flags[domain.FlagClientApproved],
		DevelopmentDone:   flags[domain.FlagDevelopmentDone],
	}
	for _, sid := range eng.PurchasedServices {
		if e.Store.Get(sid) != nil {
			in.SpecServices++
			in.SpecServiceIDs = append(in.SpecServiceIDs, sid)
		}
	}
	in.CompletionPercent = requirements.EngagementCompletion(e.Store, eng.PurchasedServices, answers).Percent
	return in, nil
}

// CanTransitionTo evaluates the gate without mutating anything.
func (e Engine) CanTransitionTo(ctx context.Context, engagementID string, target domain.Phase) (bool, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return false, err
	}
	if !domain.ValidPhase(target) {
		return false, nil
	}
	in, err := e.GateInputs(ctx, eng)
	if err != nil {
		return false, err
	}
	return phase.CanTransitionTo(eng.Phase, target, in), nil
}

// AdvancePhase moves the engagement to target if the gate allows it.
func (e Engine) AdvancePhase(ctx context.Context, engagementID string, target domain.Phase, actorID string) (domain.Engagement, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return eng, err
	}
	if !domain.ValidPhase(target) {
		return eng, fmt.Errorf("%w: unknown phase %s", ErrTransitionBlocked, target)
	}
	in, err := e.GateInputs(ctx, eng)
	if err != nil {
		return eng, err
	}
	if !phase.CanTransitionTo(eng.Phase, target, in) {
		return eng, e.blockedError(eng, target, in)
	}
	from := eng.Phase
	eng.Phase = target
	eng.UpdatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return eng, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateEngagement(ctx, tx, eng); err != nil {
		return eng, err
	}
	evtType := "phase.advanced"
	if from == domain.PhaseAwaitingClientDecision && target == domain.PhaseDiscovery {
		evtType = "phase.backtracked"
	}
	if err := e.Events.Append(ctx, tx, evtType, eng.ID, "engagement", eng.ID, actorID, events.EventPayload{
		"from": string(from),
		"to":   string(target),
	}); err != nil {
		return eng, err
	}
	if err := tx.Commit(); err != nil {
		return eng, err
	}
	return eng, nil
}

// Backtrack returns an awaiting_client_decision engagement to discovery.
func (e Engine) Backtrack(ctx context.Context, engagementID, actorID string) (domain.Engagement, error) {
	return e.AdvancePhase(ctx, engagementID, domain.PhaseDiscovery, actorID)
}

// blockedError explains a refused transition in user-facing terms.
func (e Engine) blockedError(eng domain.Engagement, target domain.Phase, in phase.Inputs) error {
	if eng.Phase == domain.PhaseImplementationSpec && target == domain.PhaseDevelopment {
		missing := 0
		for _, st := range e.completionFor(eng, in) {
			missing += len(st.Missing)
		}
		if missing > 0 {
			return fmt.Errorf("%w: fill in %d more required fields", ErrTransitionBlocked, missing)
		}
		return fmt.Errorf("%w: all purchased services require completed specifications", ErrTransitionBlocked)
	}
	return fmt.Errorf("%w: %s -> %s", ErrTransitionBlocked, eng.Phase, target)
}

func (e Engine) completionFor(eng domain.Engagement, in phase.Inputs) []requirements.ServiceStatus {
	// Recompute from stored answers; GateInputs already proved they load.
	answers, err := e.Repo.AnswerValuesByService(context.Background(), eng.ID)
	if err != nil {
		return nil
	}
	return requirements.EngagementCompletion(e.Store, eng.PurchasedServices, answers).Services
}

// Plan returns the recommended collection order for the purchased set.
func (e Engine) Plan(ctx context.Context, engagementID string) (requirements.Plan, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return requirements.Plan{}, err
	}
	return requirements.BuildPlan(e.Store, eng.PurchasedServices), nil
}

// Unification returns the shared/specific field partition for the purchased
// set.
func (e Engine) Unification(ctx context.Context, engagementID string) (requirements.Partition, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return requirements.Partition{}, err
	}
	return requirements.Unify(requirements.BuildCatalog(e.Store, eng.PurchasedServices)), nil
}

// Completion returns the engagement-level completion aggregate.
func (e Engine) Completion(ctx context.Context, engagementID string) (requirements.EngagementStatus, error) {
	eng, err := e.Repo.GetEngagement(ctx, engagementID)
	if err != nil {
		return requirements.EngagementStatus{}, err
	}
	answers, err := e.Repo.AnswerValuesByService(ctx, eng.ID)
	if err != nil {
		return requirements.EngagementStatus{}, err
	}
	return requirements.EngagementCompletion(e.Store, eng.PurchasedServices, answers), nil
}

func phaseAtLeast(current, threshold domain.Phase) bool {
	return phaseIndex(current) >= phaseIndex(threshold)
}

func phaseIndex(p domain.Phase) int {
	for i, known := range domain.Phases {
		if p == known {
			return i
		}
	}
	return -1
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
