// Package actor drives assets through their schedules. It is the only
// component that mutates asset state: every progression takes the asset's
// lock, resolves external data, asks the settlement channel whether the
// obligation was paid and commits the result against the stored version.
package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/engine"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/schedule"
)

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Deps are the collaborators of an Actor. Bus, Audit and Notifier are
// optional.
type Deps struct {
	Registry   domain.AssetRegistry
	Data       domain.DataProvider
	Settlement domain.SettlementChannel
	Locks      domain.LockManager
	Engines    *engine.Set
	Bus        domain.SignalBus
	Audit      domain.AuditStore
	Notifier   Notifier
}

// Config tunes the actor.
type Config struct {
	// LockTTL bounds how long a crashed progression can hold an asset.
	LockTTL time.Duration
	// Horizon bounds generated schedules of contracts without maturity.
	Horizon time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{LockTTL: 30 * time.Second, Horizon: 10 * 365 * 24 * time.Hour}
}

// Option customises an Actor.
type Option func(*Actor)

// WithClock replaces the wall clock. Time only advances through it.
func WithClock(now func() time.Time) Option {
	return func(a *Actor) { a.now = now }
}

// Actor runs asset progressions.
type Actor struct {
	registry   domain.AssetRegistry
	data       domain.DataProvider
	settlement domain.SettlementChannel
	locks      domain.LockManager
	engines    *engine.Set
	bus        domain.SignalBus
	audit      domain.AuditStore
	notifier   Notifier
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

// New creates an Actor.
func New(deps Deps, cfg Config, logger *slog.Logger, opts ...Option) *Actor {
	def := DefaultConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = def.Horizon
	}
	if deps.Engines == nil {
		deps.Engines = engine.NewSet()
	}
	a := &Actor{
		registry:   deps.Registry,
		data:       deps.Data,
		settlement: deps.Settlement,
		locks:      deps.Locks,
		engines:    deps.Engines,
		bus:        deps.Bus,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "actor")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InitializeRequest registers a new asset. A nil Schedule asks for the
// whole-life schedule to be generated; an empty non-nil Schedule registers
// an asset with no scheduled events.
type InitializeRequest struct {
	Terms     domain.Terms
	Schedule  []domain.Event
	Ownership domain.Ownership
	Nonce     uint64
}

// ProgressResult reports the outcome of one progression.
type ProgressResult struct {
	AssetID     domain.AssetID             `json:"assetId"`
	Event       domain.Event               `json:"event"`
	Payoff      fixed.Int                  `json:"payoff"`
	Settled     bool                       `json:"settled"`
	Performance domain.ContractPerformance `json:"performance"`
	// NoOp is set when the event had already been settled.
	NoOp bool `json:"noOp,omitzero"`
}

// Initialize validates terms and schedule, computes the initial state and
// registers the asset. This is the only write of the asset's terms.
func (a *Actor) Initialize(ctx context.Context, req InitializeRequest) (domain.AssetID, error) {
	eng, err := a.engines.For(req.Terms.ContractType)
	if err != nil {
		return domain.AssetID{}, fmt.Errorf("actor: initialize: %w", err)
	}
	state, err := eng.ComputeInitialState(req.Terms)
	if err != nil {
		return domain.AssetID{}, fmt.Errorf("actor: initialize: %w", err)
	}

	now := a.now()
	events := req.Schedule
	if events == nil {
		if events, err = engine.WholeLifeSchedule(eng, req.Terms, now.Add(a.cfg.Horizon)); err != nil {
			return domain.AssetID{}, fmt.Errorf("actor: initialize: %w", err)
		}
	} else if err := checkSchedule(eng, events); err != nil {
		return domain.AssetID{}, fmt.Errorf("actor: initialize: %w", err)
	}

	id, err := domain.NewAssetID(req.Terms, req.Ownership, req.Nonce)
	if err != nil {
		return domain.AssetID{}, fmt.Errorf("actor: initialize: %w", err)
	}
	asset := domain.Asset{
		ID:            id,
		Terms:         req.Terms,
		State:         state,
		Ownership:     req.Ownership,
		Schedule:      slices.Clone(events),
		PendingEvents: []domain.Event{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if asset.Schedule == nil {
		asset.Schedule = []domain.Event{}
	}
	if err := a.registry.RegisterAsset(ctx, asset); err != nil {
		return domain.AssetID{}, fmt.Errorf("actor: initialize %s: %w", id.Hex(), err)
	}

	a.logger.InfoContext(ctx, "asset initialized",
		slog.String("asset_id", id.Hex()),
		slog.String("contract_type", string(req.Terms.ContractType)),
		slog.Int("events", len(asset.Schedule)),
	)
	a.publish(ctx, domain.ChannelAssetInitialized, domain.InitializedAsset{
		AssetID:      id,
		ContractType: req.Terms.ContractType,
		Events:       len(asset.Schedule),
		At:           now,
	})
	a.auditLog(ctx, "asset_initialized", map[string]any{
		"asset_id":      id.Hex(),
		"contract_type": string(req.Terms.ContractType),
		"events":        len(asset.Schedule),
	})
	return id, nil
}

// checkSchedule rejects unsorted or duplicated schedules and events the
// contract type does not support.
func checkSchedule(eng engine.Engine, events []domain.Event) error {
	if !schedule.IsSorted(events) || len(schedule.Dedup(slices.Clone(events))) != len(events) {
		return domain.ErrUnsortedSchedule
	}
	for _, ev := range events {
		if !eng.Supports(ev.Type) {
			return fmt.Errorf("%w: %s does not support %s", domain.ErrUnsupportedEvent, eng.ContractType(), ev.Type)
		}
	}
	return nil
}

// source records where a progressed event came from, which decides how
// the bookkeeping moves once it is settled.
type source int

const (
	fromSchedule source = iota
	fromPending
	fromUnderlying
	fromCaller
)

// Progress applies the asset's next due event: the oldest pending event if
// any, otherwise the earlier of the next scheduled event and the event
// implied by the underlying of a credit enhancement.
func (a *Actor) Progress(ctx context.Context, id domain.AssetID) (ProgressResult, error) {
	unlock, err := a.locks.Acquire(ctx, lockKey(id), a.cfg.LockTTL)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), err)
	}
	defer unlock()

	asset, eng, err := a.load(ctx, id)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), err)
	}

	ev, src, err := a.nextEvent(ctx, asset, eng)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), err)
	}
	if final := asset.State.ContractPerformance; final.Final() {
		if !ev.IsNone() {
			if res, ok, err := a.alreadySettled(ctx, asset, ev); err != nil || ok {
				return res, err
			}
		}
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w: %s", id.Hex(), domain.ErrAssetFinalState, final)
	}
	if ev.IsNone() {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), domain.ErrNoEventDue)
	}
	return a.apply(ctx, asset, eng, ev, src)
}

// ProgressWith applies an explicit event. It is rejected while an earlier
// event is still to be applied, so events are only ever applied in order.
func (a *Actor) ProgressWith(ctx context.Context, id domain.AssetID, ev domain.Event) (ProgressResult, error) {
	if ev.IsNone() || ev.Validate() != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), domain.ErrMalformedEvent)
	}
	unlock, err := a.locks.Acquire(ctx, lockKey(id), a.cfg.LockTTL)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), err)
	}
	defer unlock()

	asset, eng, err := a.load(ctx, id)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), err)
	}
	// re-running an applied event succeeds whatever happened since
	if res, ok, err := a.alreadySettled(ctx, asset, ev); err != nil || ok {
		return res, err
	}
	if final := asset.State.ContractPerformance; final.Final() {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w: %s", id.Hex(), domain.ErrAssetFinalState, final)
	}
	if !eng.Supports(ev.Type) {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w: %s does not support %s",
			id.Hex(), domain.ErrUnsupportedEvent, eng.ContractType(), ev.Type)
	}
	if ev.ScheduleTime.Before(asset.State.StatusDate) {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w: %s is before %s",
			id.Hex(), domain.ErrEventInPast, ev, asset.State.StatusDate.Format(time.RFC3339))
	}

	src := fromCaller
	if pending := asset.PendingEvent(); !pending.IsNone() {
		if !pending.Equal(ev) {
			return ProgressResult{}, fmt.Errorf("actor: progress %s: %w: pending %s", id.Hex(), domain.ErrFoundEarlierEvent, pending)
		}
		src = fromPending
	} else if next := asset.NextScheduledEvent(); !next.IsNone() {
		if next.ScheduleTime.Before(ev.ScheduleTime) {
			return ProgressResult{}, fmt.Errorf("actor: progress %s: %w: scheduled %s", id.Hex(), domain.ErrFoundEarlierEvent, next)
		}
		if next.Equal(ev) {
			src = fromSchedule
		}
	}
	return a.apply(ctx, asset, eng, ev, src)
}

func lockKey(id domain.AssetID) string {
	return "asset:" + id.Hex()
}

func (a *Actor) load(ctx context.Context, id domain.AssetID) (domain.Asset, engine.Engine, error) {
	asset, err := a.registry.GetAsset(ctx, id)
	if err != nil {
		return domain.Asset{}, nil, err
	}
	eng, err := a.engines.For(asset.Terms.ContractType)
	if err != nil {
		return domain.Asset{}, nil, err
	}
	return asset, eng, nil
}

// alreadySettled reports the no-op result for an event that was applied
// before. Bookkeeping only moves for the event at the head of the pending
// queue or the schedule, and never on an asset in a final state.
func (a *Actor) alreadySettled(ctx context.Context, asset domain.Asset, ev domain.Event) (ProgressResult, bool, error) {
	settled, paid, err := a.registry.IsEventSettled(ctx, asset.ID, ev)
	if err != nil {
		return ProgressResult{}, false, fmt.Errorf("actor: progress %s: %w", asset.ID.Hex(), err)
	}
	if !settled {
		return ProgressResult{}, false, nil
	}
	src := fromCaller
	switch {
	case asset.State.ContractPerformance.Final():
	case asset.PendingEvent().Equal(ev):
		src = fromPending
	case len(asset.PendingEvents) == 0 && asset.NextScheduledEvent().Equal(ev):
		src = fromSchedule
	}
	res, err := a.skipSettled(ctx, asset, ev, paid, src)
	return res, err == nil, err
}

func (a *Actor) nextEvent(ctx context.Context, asset domain.Asset, eng engine.Engine) (domain.Event, source, error) {
	if pending := asset.PendingEvent(); !pending.IsNone() {
		return pending, fromPending, nil
	}
	scheduled := asset.NextScheduledEvent()

	ce, ok := eng.(engine.CreditEnhancement)
	if !ok {
		return scheduled, fromSchedule, nil
	}
	underlying, err := a.registry.GetState(ctx, asset.Terms.ContractReference)
	if errors.Is(err, domain.ErrNotFound) {
		return scheduled, fromSchedule, nil
	}
	if err != nil {
		return domain.NoEvent, fromSchedule, err
	}
	implied, ok := ce.NextUnderlyingEvent(asset.Terms, asset.State, underlying)
	if !ok || implied.Equal(scheduled) || (!scheduled.IsNone() && !domain.Less(implied, scheduled)) {
		return scheduled, fromSchedule, nil
	}
	return implied, fromUnderlying, nil
}

// apply evaluates ev against the asset and commits the outcome. The lock
// on the asset is held by the caller.
func (a *Actor) apply(ctx context.Context, asset domain.Asset, eng engine.Engine, ev domain.Event, src source) (ProgressResult, error) {
	id := asset.ID
	terms := asset.Terms
	now := a.now()

	if due := eng.EventTime(terms, ev); due.After(now) {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w: %s due %s",
			id.Hex(), domain.ErrEventNotYetDue, ev, due.Format(time.RFC3339))
	}

	settled, paid, err := a.registry.IsEventSettled(ctx, id, ev)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %w", id.Hex(), err)
	}
	if settled {
		return a.skipSettled(ctx, asset, ev, paid, src)
	}

	// a non-performing asset is evaluated from its last performant state
	current := asset.State
	if !current.Performant() && asset.FinalizedState != nil {
		current = *asset.FinalizedState
	}

	ext, err := a.externalData(ctx, asset, eng, ev, now)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: %s: %w", id.Hex(), ev, err)
	}
	payoff, err := eng.ComputePayoffForEvent(terms, current, ev, ext)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: payoff %s: %w", id.Hex(), ev, err)
	}
	next, err := eng.ComputeStateForEvent(terms, current, ev, ext)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: state %s: %w", id.Hex(), ev, err)
	}

	ok, err := a.confirm(ctx, asset, ev, payoff)
	if err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: settle %s: %w", id.Hex(), ev, err)
	}

	update := domain.ProgressUpdate{
		AssetID:         id,
		ExpectedVersion: asset.Version,
		Cursor:          asset.Cursor,
		PendingEvents:   slices.Clone(asset.PendingEvents),
	}
	if src == fromSchedule {
		update.Cursor++
	}

	if ok {
		update.PendingEvents = removeEvent(update.PendingEvents, ev)
		update.State = next
		if len(update.PendingEvents) == 0 {
			// nothing outstanding: back to performant unless the event closed the asset
			if !update.State.ContractPerformance.Final() {
				update.State.ContractPerformance = domain.PerformancePerformant
			}
			update.State.NonPerformingDate = time.Time{}
		} else {
			// still behind on an earlier obligation
			update.FinalizedState = &next
			update.State = engine.ApplyCreditEvent(terms, asset.State, update.PendingEvents[0].ScheduleTime, now)
		}
		update.Settled = &domain.SettledEvent{Event: ev, Payoff: payoff, SettledAt: now}
	} else {
		finalized := current
		update.FinalizedState = &finalized
		update.PendingEvents = insertEvent(update.PendingEvents, ev)
		update.State = engine.ApplyCreditEvent(terms, asset.State, ev.ScheduleTime, now)
	}

	if err := a.registry.CommitProgress(ctx, update); err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: commit %s: %w", id.Hex(), ev, err)
	}

	res := ProgressResult{
		AssetID:     id,
		Event:       ev,
		Payoff:      payoff,
		Settled:     ok,
		Performance: update.State.ContractPerformance,
	}
	a.logger.InfoContext(ctx, "asset progressed",
		slog.String("asset_id", id.Hex()),
		slog.String("event", ev.String()),
		slog.String("payoff", payoff.String()),
		slog.Bool("settled", ok),
		slog.String("performance", string(res.Performance)),
	)
	a.afterCommit(ctx, asset, res, update.State, now)
	return res, nil
}

// skipSettled advances past an event that was already applied.
func (a *Actor) skipSettled(ctx context.Context, asset domain.Asset, ev domain.Event, paid fixed.Int, src source) (ProgressResult, error) {
	res := ProgressResult{
		AssetID:     asset.ID,
		Event:       ev,
		Payoff:      paid,
		Settled:     true,
		Performance: asset.State.ContractPerformance,
		NoOp:        true,
	}
	if src != fromSchedule && src != fromPending {
		return res, nil
	}
	update := domain.ProgressUpdate{
		AssetID:         asset.ID,
		ExpectedVersion: asset.Version,
		State:           asset.State,
		FinalizedState:  asset.FinalizedState,
		Cursor:          asset.Cursor,
		PendingEvents:   removeEvent(slices.Clone(asset.PendingEvents), ev),
	}
	if src == fromSchedule {
		update.Cursor++
	}
	if err := a.registry.CommitProgress(ctx, update); err != nil {
		return ProgressResult{}, fmt.Errorf("actor: progress %s: skip %s: %w", asset.ID.Hex(), ev, err)
	}
	a.logger.DebugContext(ctx, "event already settled",
		slog.String("asset_id", asset.ID.Hex()),
		slog.String("event", ev.String()),
	)
	return res, nil
}

// externalData resolves the value ev depends on. A required value that was
// not published is an error; nothing is substituted.
func (a *Actor) externalData(ctx context.Context, asset domain.Asset, eng engine.Engine, ev domain.Event, now time.Time) (domain.ExternalData, error) {
	req, ok := eng.ExternalDataFor(asset.Terms, ev)
	if !ok {
		if ev.Type == domain.EventCE {
			return domain.Timestamp(now), nil
		}
		return domain.NoData(), nil
	}

	switch req.Source {
	case domain.SourceUnderlying:
		ce, ok := eng.(engine.CreditEnhancement)
		if !ok {
			return domain.NoData(), fmt.Errorf("%w: %s has no underlying", domain.ErrMalformedTerms, eng.ContractType())
		}
		underlying, err := a.registry.GetState(ctx, asset.Terms.ContractReference)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NoData(), fmt.Errorf("%w: underlying %s", domain.ErrDataNotAvailable, asset.Terms.ContractReference.Hex())
		}
		if err != nil {
			return domain.NoData(), err
		}
		exposure, err := ce.Exposure(asset.Terms, underlying)
		if err != nil {
			return domain.NoData(), err
		}
		return domain.Number(exposure), nil

	default:
		v, found, err := a.data.GetDataPoint(ctx, req.MarketObjectCode, req.Timestamp)
		if err != nil {
			return domain.NoData(), err
		}
		if !found {
			if req.Required {
				return domain.NoData(), fmt.Errorf("%w: %q at %s", domain.ErrDataNotAvailable,
					req.MarketObjectCode, req.Timestamp.Format(time.RFC3339))
			}
			return domain.NoData(), nil
		}
		return domain.Number(v), nil
	}
}

// confirm asks the settlement channel whether the payoff moved between the
// parties. Nothing is owed on a zero payoff.
func (a *Actor) confirm(ctx context.Context, asset domain.Asset, ev domain.Event, payoff fixed.Int) (bool, error) {
	if payoff.IsZero() {
		return true, nil
	}
	amount, err := payoff.Abs()
	if err != nil {
		return false, err
	}
	from, to := asset.Ownership.Parties(payoff)
	currency := asset.Terms.SettlementCurrency
	if currency == "" {
		currency = asset.Terms.Currency
	}
	return a.settlement.Confirm(ctx, domain.SettlementInstruction{
		AssetID:  asset.ID,
		Event:    ev,
		From:     from,
		To:       to,
		Currency: currency,
		Amount:   amount,
	})
}

func (a *Actor) afterCommit(ctx context.Context, asset domain.Asset, res ProgressResult, state domain.State, now time.Time) {
	previous := asset.State.ContractPerformance
	a.publish(ctx, domain.ChannelAssetProgressed, domain.ProgressedAsset{
		AssetID:     res.AssetID,
		Event:       res.Event,
		Payoff:      res.Payoff,
		Settled:     res.Settled,
		Performance: res.Performance,
		Previous:    previous,
		StatusDate:  state.StatusDate,
		At:          now,
	})
	a.auditLog(ctx, "asset_progressed", map[string]any{
		"asset_id":    res.AssetID.Hex(),
		"event":       res.Event.String(),
		"payoff":      res.Payoff.String(),
		"settled":     res.Settled,
		"performance": string(res.Performance),
	})

	if previous == res.Performance {
		return
	}
	a.logger.WarnContext(ctx, "asset performance changed",
		slog.String("asset_id", res.AssetID.Hex()),
		slog.String("from", string(previous)),
		slog.String("to", string(res.Performance)),
	)
	if a.notifier != nil {
		msg := fmt.Sprintf("asset %s moved from %s to %s after %s", res.AssetID.Hex(), previous, res.Performance, res.Event)
		title := fmt.Sprintf("Asset %s", res.Performance)
		if err := a.notifier.Notify(ctx, string(res.Performance), title, msg); err != nil {
			a.logger.WarnContext(ctx, "actor: notify failed",
				slog.String("asset_id", res.AssetID.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	a.publish(ctx, domain.ChannelPerformance, map[string]any{
		"assetId":  res.AssetID,
		"previous": previous,
		"current":  res.Performance,
		"at":       now,
	})
}

func (a *Actor) publish(ctx context.Context, channel string, v any) {
	if a.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		a.logger.WarnContext(ctx, "actor: marshal signal failed", slog.String("error", err.Error()))
		return
	}
	if err := a.bus.Publish(ctx, channel, payload); err != nil {
		a.logger.WarnContext(ctx, "actor: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
	if err := a.bus.StreamAppend(ctx, domain.StreamAssetEvents, payload); err != nil {
		a.logger.WarnContext(ctx, "actor: stream append failed", slog.String("error", err.Error()))
	}
}

func (a *Actor) auditLog(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Log(ctx, event, detail); err != nil {
		a.logger.WarnContext(ctx, "actor: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func removeEvent(events []domain.Event, ev domain.Event) []domain.Event {
	return slices.DeleteFunc(events, ev.Equal)
}

func insertEvent(events []domain.Event, ev domain.Event) []domain.Event {
	if slices.ContainsFunc(events, ev.Equal) {
		return events
	}
	return schedule.Merge(events, []domain.Event{ev})
}
