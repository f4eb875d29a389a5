package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/actus/internal/actor"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/engine"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// maxStepsPerRun bounds ProgressDue so a misbehaving asset cannot pin a
// keeper worker.
const maxStepsPerRun = 256

// AssetService is the entry point used by the HTTP handlers, the keeper and
// the CLI. Lifecycle changes go through the actor; reads go straight to the
// registry.
type AssetService struct {
	actor    *actor.Actor
	registry domain.AssetRegistry
	ledger   domain.SettlementLedger
	data     domain.DataProvider
	engines  *engine.Set
	horizon  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewAssetService creates an AssetService. horizon bounds generated
// schedules for contracts without a maturity date.
func NewAssetService(
	a *actor.Actor,
	registry domain.AssetRegistry,
	ledger domain.SettlementLedger,
	data domain.DataProvider,
	engines *engine.Set,
	horizon time.Duration,
	logger *slog.Logger,
) *AssetService {
	if engines == nil {
		engines = engine.NewSet()
	}
	return &AssetService{
		actor:    a,
		registry: registry,
		ledger:   ledger,
		data:     data,
		engines:  engines,
		horizon:  horizon,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "asset_service")),
	}
}

// Initialize registers a new asset and returns it as stored.
func (s *AssetService) Initialize(ctx context.Context, req actor.InitializeRequest) (domain.Asset, error) {
	id, err := s.actor.Initialize(ctx, req)
	if err != nil {
		return domain.Asset{}, err
	}
	return s.Get(ctx, id)
}

func (s *AssetService) Get(ctx context.Context, id domain.AssetID) (domain.Asset, error) {
	a, err := s.registry.GetAsset(ctx, id)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("asset_service: get %s: %w", id.Hex(), err)
	}
	return a, nil
}

func (s *AssetService) List(ctx context.Context, opts domain.ListOpts) ([]domain.AssetSummary, error) {
	out, err := s.registry.ListAssets(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("asset_service: list: %w", err)
	}
	return out, nil
}

// ListActive returns assets that can still progress.
func (s *AssetService) ListActive(ctx context.Context, limit, offset int) ([]domain.AssetSummary, error) {
	return s.List(ctx, domain.ListOpts{
		Limit:  limit,
		Offset: offset,
		Performance: []domain.ContractPerformance{
			domain.PerformancePerformant,
			domain.PerformanceDueButUnpaid,
			domain.PerformanceDelinquent,
		},
	})
}

// ScheduleView is the event history of an asset.
type ScheduleView struct {
	AssetID  domain.AssetID        `json:"assetId"`
	Schedule []domain.Event        `json:"schedule"`
	Cursor   int                   `json:"cursor"`
	Pending  []domain.Event        `json:"pendingEvents"`
	Settled  []domain.SettledEvent `json:"settled"`
	Next     domain.Event          `json:"nextEvent"`
}

func (s *AssetService) Schedule(ctx context.Context, id domain.AssetID) (ScheduleView, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return ScheduleView{}, err
	}
	settled, err := s.registry.ListSettledEvents(ctx, id)
	if err != nil {
		return ScheduleView{}, fmt.Errorf("asset_service: settled events %s: %w", id.Hex(), err)
	}
	return ScheduleView{
		AssetID:  id,
		Schedule: a.Schedule,
		Cursor:   a.Cursor,
		Pending:  a.PendingEvents,
		Settled:  settled,
		Next:     a.NextScheduledEvent(),
	}, nil
}

func (s *AssetService) Progress(ctx context.Context, id domain.AssetID) (actor.ProgressResult, error) {
	return s.actor.Progress(ctx, id)
}

func (s *AssetService) ProgressWith(ctx context.Context, id domain.AssetID, ev domain.Event) (actor.ProgressResult, error) {
	return s.actor.ProgressWith(ctx, id, ev)
}

// ProgressDue applies due events until none is left, an obligation goes
// unpaid or an error occurs. Running out of due events is not an error.
func (s *AssetService) ProgressDue(ctx context.Context, id domain.AssetID) ([]actor.ProgressResult, error) {
	var results []actor.ProgressResult
	for range maxStepsPerRun {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.actor.Progress(ctx, id)
		if errors.Is(err, domain.ErrNoEventDue) || errors.Is(err, domain.ErrEventNotYetDue) {
			return results, nil
		}
		if err != nil {
			return results, err
		}
		if n := len(results); n > 0 && res.NoOp && results[n-1].Event.Equal(res.Event) {
			return results, nil
		}
		results = append(results, res)
		if !res.Settled || res.Performance.Final() {
			return results, nil
		}
	}
	s.logger.WarnContext(ctx, "asset_service: progress step limit reached", slog.String("asset_id", id.Hex()))
	return results, nil
}

// PreviewSchedule generates the schedule of terms without registering
// anything. A zero from or to falls back to the contract's own window.
func (s *AssetService) PreviewSchedule(terms domain.Terms, from, to time.Time) ([]domain.Event, error) {
	eng, err := s.engines.For(terms.ContractType)
	if err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return engine.WholeLifeSchedule(eng, terms, s.now().Add(s.horizon))
	}
	if from.IsZero() {
		from = terms.StatusDate
	}
	if to.IsZero() {
		to = s.now().Add(s.horizon)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: window ends before it starts", domain.ErrMalformedTerms)
	}
	return eng.ComputeSchedule(terms, from, to)
}

// SetDataPoint publishes a market observation for the actor to consume.
func (s *AssetService) SetDataPoint(ctx context.Context, code string, ts time.Time, value fixed.Int) error {
	code = strings.TrimSpace(code)
	if code == "" || ts.IsZero() {
		return fmt.Errorf("%w: market object code and timestamp are required", domain.ErrMalformedExternalData)
	}
	if err := s.data.SetDataPoint(ctx, code, ts, value); err != nil {
		return fmt.Errorf("asset_service: set data point %s: %w", code, err)
	}
	s.logger.DebugContext(ctx, "data point set",
		slog.String("market_object_code", code),
		slog.Time("timestamp", ts),
		slog.String("value", value.String()),
	)
	return nil
}

// DataHistory lists the observations of code within [from, to]. A zero
// bound leaves that side open.
func (s *AssetService) DataHistory(ctx context.Context, code string, from, to time.Time) ([]domain.DataPoint, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: market object code is required", domain.ErrMalformedExternalData)
	}
	if to.IsZero() {
		to = s.now()
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: window ends before it starts", domain.ErrMalformedExternalData)
	}
	points, err := s.data.History(ctx, code, from, to)
	if err != nil {
		return nil, fmt.Errorf("asset_service: data history %s: %w", code, err)
	}
	return points, nil
}

// RecordPayment books a transfer towards an asset event. The currency
// defaults to the asset's settlement currency.
func (s *AssetService) RecordPayment(ctx context.Context, p domain.Payment) error {
	if p.Event.IsNone() || !p.Event.Type.Valid() {
		return domain.ErrMalformedEvent
	}
	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: payment amount must be positive", domain.ErrMalformedTerms)
	}
	a, err := s.Get(ctx, p.AssetID)
	if err != nil {
		return err
	}
	if p.Currency == "" {
		p.Currency = a.Terms.SettlementCurrency
		if p.Currency == "" {
			p.Currency = a.Terms.Currency
		}
	}
	if err := s.ledger.RecordPayment(ctx, p); err != nil {
		return fmt.Errorf("asset_service: record payment %s: %w", p.AssetID.Hex(), err)
	}
	s.logger.InfoContext(ctx, "payment recorded",
		slog.String("asset_id", p.AssetID.Hex()),
		slog.String("event", p.Event.String()),
		slog.String("amount", p.Amount.String()),
		slog.String("currency", p.Currency),
	)
	return nil
}

func (s *AssetService) Payments(ctx context.Context, id domain.AssetID) ([]domain.Payment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListPayments(ctx, id)
}
