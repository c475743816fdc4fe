package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmllr/alertchain/internal/alarm"
	"github.com/jmllr/alertchain/internal/fetch"
	"github.com/jmllr/alertchain/internal/logger"
	"github.com/jmllr/alertchain/internal/metrics"
	"github.com/jmllr/alertchain/internal/models"
	"github.com/jmllr/alertchain/internal/resolve"
	"github.com/jmllr/alertchain/internal/state"
)

// Engine orchestrates one evaluation run: validate, plan, fetch, evaluate,
// decide, commit, dispatch.
type Engine struct {
	defaults   models.EngineDefaults
	expander   *resolve.Expander
	fetcher    *fetch.Fetcher
	store      state.Store
	dispatcher *alarm.Dispatcher

	now func() time.Time
}

func New(defaults models.EngineDefaults, expander *resolve.Expander, fetcher *fetch.Fetcher, store state.Store, dispatcher *alarm.Dispatcher) *Engine {
	return &Engine{
		defaults:   defaults,
		expander:   expander,
		fetcher:    fetcher,
		store:      store,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// RunSummary reports what one run did.
type RunSummary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration

	Profiles        int
	SkippedProfiles int
	Units           int
	SkippedInactive int
	Fetches         int
	Pushes          int
	PartialChanges  int
	Sent            int
	Failed          int

	Errors []string
}

// unit is one (profile, group, symbol) evaluation target of the current run.
type unit struct {
	key     models.StatusKey
	profile *models.Profile
	group   *models.Group
	st      *models.StatusState
	rows    []unitRow
}

type unitRow struct {
	cond *models.Condition
	pair models.ResolvedPair
}

// Run executes one full evaluation cycle over the given profiles. Profiles
// with validation errors are skipped individually; a broken profile never
// blocks the rest. The returned error covers infrastructure failures only
// (store, cancellation), not rule outcomes.
func (e *Engine) Run(ctx context.Context, profiles []models.Profile) (*RunSummary, error) {
	started := e.now()
	sum := &RunSummary{RunID: uuid.NewString(), Started: started}
	defer func() {
		sum.Duration = e.now().Sub(started)
		metrics.RunDuration.Observe(sum.Duration.Seconds())
	}()

	validation := models.ValidateProfiles(profiles)
	for _, issue := range validation.Issues {
		if issue.Severity == "error" {
			logger.Error("profile validation: %s", issue)
		} else {
			logger.Warn("profile validation: %s", issue)
		}
	}

	units, plan := e.collect(profiles, validation, sum)
	sum.Fetches = len(plan.Keys)
	logger.Info("run started: id=%s profiles=%d units=%d unique_fetches=%d",
		sum.RunID, sum.Profiles, len(units), len(plan.Keys))

	results, err := e.fetcher.Execute(ctx, plan)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("fail").Inc()
		return sum, fmt.Errorf("fetch plan: %w", err)
	}

	dirty := make(map[models.StatusKey]*models.StatusState, len(units))
	var events []models.HistoryEvent
	var notifications []alarm.Notification

	for _, u := range units {
		ev, notes := e.evaluate(u, plan, results, sum)
		dirty[u.key] = u.st
		events = append(events, ev...)
		notifications = append(notifications, notes...)
	}

	commitStart := e.now()
	if err := e.store.Commit(dirty, events); err != nil {
		metrics.RunsTotal.WithLabelValues("fail").Inc()
		return sum, fmt.Errorf("commit state: %w", err)
	}
	metrics.CommitDuration.Observe(e.now().Sub(commitStart).Seconds())

	sum.Sent, sum.Failed = e.dispatcher.Dispatch(notifications)
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	logger.Info("run finished: id=%s units=%d pushes=%d partial_changes=%d sent=%d failed=%d took=%s",
		sum.RunID, sum.Units, sum.Pushes, sum.PartialChanges, sum.Sent, sum.Failed, e.now().Sub(started))
	return sum, nil
}

// collect builds the unit list and the deduplicated fetch plan. Inactive
// units are skipped entirely: no resolution, no fetches, no evaluation.
func (e *Engine) collect(profiles []models.Profile, validation *models.ValidationResult, sum *RunSummary) ([]*unit, *fetch.Plan) {
	plan := fetch.NewPlan()
	var units []*unit

	for pi := range profiles {
		p := &profiles[pi]
		if !p.Enabled {
			continue
		}
		sum.Profiles++
		if issues := validation.ErrorsFor(p.ID); len(issues) > 0 {
			sum.SkippedProfiles++
			logger.Warn("skipping profile %s: %d validation error(s)", p.ID, len(issues))
			continue
		}

		for gi := range p.Groups {
			g := &p.Groups[gi]
			if !g.Enabled {
				continue
			}
			symbols, err := e.expander.Symbols(g)
			if err != nil {
				sum.Errors = append(sum.Errors, err.Error())
				logger.Error("skipping group %s/%s: %v", p.ID, g.GID, err)
				continue
			}

			for _, symbol := range symbols {
				u, err := e.buildUnit(p, g, symbol)
				if err != nil {
					sum.Errors = append(sum.Errors, err.Error())
					logger.Error("skipping unit: %v", err)
					continue
				}
				if !u.st.Active {
					sum.SkippedInactive++
					logger.Debug("skipping inactive unit: key=%s", u.key)
					continue
				}
				units = append(units, u)
				sum.Units++
				for _, row := range u.rows {
					plan.AddRow(p.ID, g.GID, symbol, row.cond, row.pair)
				}
			}
		}
	}
	return units, plan
}

func (e *Engine) buildUnit(p *models.Profile, g *models.Group, symbol string) (*unit, error) {
	var rows []unitRow
	var key models.StatusKey

	for ci := range g.Conditions {
		c := &g.Conditions[ci]
		if !c.Enabled {
			continue
		}
		pair, err := resolve.Row(p, g, c, e.defaults, symbol)
		if err != nil {
			return nil, err
		}
		if key == (models.StatusKey{}) {
			key = models.StatusKey{
				ProfileID:     p.ID,
				GID:           g.GID,
				Symbol:        symbol,
				Exchange:      pair.Left.Exchange,
				ClockInterval: pair.Left.ClockInterval,
			}
		}
		rows = append(rows, unitRow{cond: c, pair: pair})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("group %s/%s has no enabled rows for %s", p.ID, g.GID, symbol)
	}

	st, _, err := e.store.Load(key)
	if err != nil {
		return nil, fmt.Errorf("load state for %s: %w", key, err)
	}
	return &unit{key: key, profile: p, group: g, st: st, rows: rows}, nil
}

// evaluate runs chain, tick, threshold, and alarm policy for one unit and
// returns its history events and notifications.
func (e *Engine) evaluate(u *unit, plan *fetch.Plan, results map[fetch.RequestKey]models.FetchResult, sum *RunSummary) ([]models.HistoryEvent, []alarm.Notification) {
	fetched := make([]rowFetch, 0, len(u.rows))
	rowResults := make([]RowResult, 0, len(u.rows))

	for _, row := range u.rows {
		left := results[plan.ByRow[fetch.RowRef{
			ProfileID: u.key.ProfileID, GID: u.key.GID, Symbol: u.key.Symbol,
			RID: row.cond.RID, Side: models.SideLeft,
		}]]
		right := results[plan.ByRow[fetch.RowRef{
			ProfileID: u.key.ProfileID, GID: u.key.GID, Symbol: u.key.Symbol,
			RID: row.cond.RID, Side: models.SideRight,
		}]]
		fetched = append(fetched, rowFetch{cond: row.cond, pair: row.pair, left: left, right: right})
		rowResults = append(rowResults, evalRow(row.cond, left, right))
	}

	chain := foldChain(rowResults)
	metrics.EvalUnitsTotal.WithLabelValues(string(chain.Final)).Inc()

	tickTS := pickTick(fetched)
	newTick := isNewTick(u.st, tickTS)

	thresholdCfg := u.group.ThresholdOrDefault()
	passed := advanceThreshold(thresholdCfg, u.st, chain.Final, newTick)
	snapshot := thresholdSnapshot(thresholdCfg, u.st, passed)

	alarmCfg := u.group.AlarmOrDefault()
	decision := alarm.Apply(alarmCfg, u.st, chain.Final, chain.PartialTrue, passed, float64(e.now().UnixNano())/1e9)

	if newTick {
		u.st.LastTickTS = tickTS
	}
	if chain.Final == models.StateTrue && tickTS != "" {
		u.st.LastTrueTS = tickTS
	}

	logger.Debug("evaluated unit: key=%s final=%s partial=%v tick=%q new_tick=%v passed=%v push=%v suppressed=%q",
		u.key, chain.Final, chain.PartialTrue, tickTS, newTick, passed, decision.Push, decision.Suppressed)

	base := e.buildEvent(u, chain, tickTS, newTick, snapshot, decision)
	events := []models.HistoryEvent{base}
	var notifications []alarm.Notification

	if decision.Push {
		sum.Pushes++
		metrics.PushesTotal.Inc()
		push := base
		push.Event = models.EventPush
		events = append(events, push)
		notifications = append(notifications, alarm.Notification{
			Kind: models.EventPush, Key: u.key, GroupName: groupName(u), Event: push,
		})
	}
	if decision.PartialChange {
		sum.PartialChanges++
		pc := base
		pc.Event = models.EventPartialChange
		events = append(events, pc)
		notifications = append(notifications, alarm.Notification{
			Kind: models.EventPartialChange, Key: u.key, GroupName: groupName(u), Event: pc,
		})
	}
	if decision.Deactivated {
		deact := base
		deact.Event = models.EventDeactivated
		deact.Debug = map[string]any{"mode": alarmCfg.Mode}
		events = append(events, deact)
		logger.Info("unit deactivated after push: key=%s mode=%s", u.key, alarmCfg.Mode)
	}
	return events, notifications
}

func (e *Engine) buildEvent(u *unit, chain ChainResult, tickTS string, newTick bool, snapshot map[string]any, decision alarm.Decision) models.HistoryEvent {
	ev := models.HistoryEvent{
		TS:                e.now().UTC().Format(time.RFC3339),
		ProfileID:         u.key.ProfileID,
		GID:               u.key.GID,
		Symbol:            u.key.Symbol,
		Exchange:          u.key.Exchange,
		ClockInterval:     u.key.ClockInterval,
		Event:             models.EventEval,
		PartialTrue:       chain.PartialTrue,
		FinalState:        chain.Final,
		ThresholdSnapshot: snapshot,
	}
	if len(chain.Rows) > 0 {
		first := chain.Rows[0]
		ev.LeftValue = first.LeftValue
		ev.RightValue = first.RightValue
		ev.Op = u.rows[0].cond.Op
	}

	trace := make([]map[string]any, 0, len(chain.Rows))
	for i, row := range chain.Rows {
		step := map[string]any{
			"rid":   row.RID,
			"state": string(row.State),
			"acc":   string(chain.Steps[i]),
		}
		if i > 0 {
			logic := row.Logic
			if logic == "" {
				logic = models.LogicAnd
			}
			step["logic"] = logic
		}
		if row.Reason != "" {
			step["reason"] = row.Reason
		}
		trace = append(trace, step)
	}
	ev.Debug = map[string]any{
		"rows":     trace,
		"tick_ts":  tickTS,
		"new_tick": newTick,
	}
	if decision.Suppressed != "" {
		ev.Debug["suppressed"] = decision.Suppressed
	}
	return ev
}

func groupName(u *unit) string {
	if u.profile.Name != "" {
		return u.profile.Name + " / " + u.key.GID
	}
	return u.key.GID
}

// Rearm reactivates the deactivated units of one group across all its
// expanded symbols. With resetThreshold the streak and count window are
// cleared too, so the gate starts from scratch.
func (e *Engine) Rearm(profileID, gid string, resetThreshold bool) (int, error) {
	keys, err := e.store.Keys()
	if err != nil {
		return 0, fmt.Errorf("list status keys: %w", err)
	}

	dirty := make(map[models.StatusKey]*models.StatusState)
	for _, k := range keys {
		if k.ProfileID != profileID || k.GID != gid {
			continue
		}
		st, _, err := e.store.Load(k)
		if err != nil {
			return 0, fmt.Errorf("load state for %s: %w", k, err)
		}
		if st.Active && !resetThreshold {
			continue
		}
		st.Active = true
		if resetThreshold {
			st.Streak = 0
			st.CountWindow = []bool{}
			st.LastFinalState = ""
			st.LastPartialTrue = nil
		}
		dirty[k] = st
	}
	if len(dirty) == 0 {
		return 0, nil
	}
	if err := e.store.Commit(dirty, nil); err != nil {
		return 0, fmt.Errorf("commit rearm: %w", err)
	}
	logger.Info("rearmed %d unit(s): profile=%s gid=%s reset_threshold=%v", len(dirty), profileID, gid, resetThreshold)
	return len(dirty), nil
}
