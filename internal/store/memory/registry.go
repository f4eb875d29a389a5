// Package memory provides in-process implementations of the store and
// cache interfaces. They back single-node deployments without Postgres or
// Redis and are used throughout the tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// Registry implements domain.AssetRegistry.
type Registry struct {
	mu       sync.RWMutex
	assets   map[domain.AssetID]domain.Asset
	settled  map[domain.AssetID]map[common.Hash]domain.SettledEvent
	archived map[domain.AssetID]time.Time
}

var _ domain.AssetRegistry = (*Registry)(nil)

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		assets:   make(map[domain.AssetID]domain.Asset),
		settled:  make(map[domain.AssetID]map[common.Hash]domain.SettledEvent),
		archived: make(map[domain.AssetID]time.Time),
	}
}

// clone copies the slices and pointers of an asset so callers never share
// memory with the registry.
func clone(a domain.Asset) domain.Asset {
	a.Schedule = slices.Clone(a.Schedule)
	a.PendingEvents = slices.Clone(a.PendingEvents)
	if a.FinalizedState != nil {
		fs := *a.FinalizedState
		a.FinalizedState = &fs
	}
	return a
}

func (r *Registry) RegisterAsset(_ context.Context, asset domain.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[asset.ID]; ok {
		return fmt.Errorf("memory: register asset %s: %w", asset.ID.Hex(), domain.ErrAlreadyExists)
	}
	r.assets[asset.ID] = clone(asset)
	return nil
}

func (r *Registry) GetAsset(_ context.Context, id domain.AssetID) (domain.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	if !ok {
		return domain.Asset{}, fmt.Errorf("memory: asset %s: %w", id.Hex(), domain.ErrNotFound)
	}
	return clone(a), nil
}

func (r *Registry) GetTerms(ctx context.Context, id domain.AssetID) (domain.Terms, error) {
	a, err := r.GetAsset(ctx, id)
	if err != nil {
		return domain.Terms{}, err
	}
	return a.Terms, nil
}

func (r *Registry) GetState(ctx context.Context, id domain.AssetID) (domain.State, error) {
	a, err := r.GetAsset(ctx, id)
	if err != nil {
		return domain.State{}, err
	}
	return a.State, nil
}

// SetState overwrites the state of an asset outside of a progression.
func (r *Registry) SetState(_ context.Context, id domain.AssetID, state domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[id]
	if !ok {
		return fmt.Errorf("memory: set state %s: %w", id.Hex(), domain.ErrNotFound)
	}
	a.State = state
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	r.assets[id] = a
	return nil
}

func (r *Registry) GetNextScheduledEvent(ctx context.Context, id domain.AssetID) (domain.Event, error) {
	a, err := r.GetAsset(ctx, id)
	if err != nil {
		return domain.NoEvent, err
	}
	return a.NextScheduledEvent(), nil
}

func (r *Registry) IsEventSettled(_ context.Context, id domain.AssetID, ev domain.Event) (bool, fixed.Int, error) {
	key, err := domain.Encode(ev)
	if err != nil {
		return false, fixed.Zero, fmt.Errorf("memory: settled %s: %w", id.Hex(), err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	se, ok := r.settled[id][key]
	if !ok {
		return false, fixed.Zero, nil
	}
	return true, se.Payoff, nil
}

// CommitProgress applies update if the stored version still matches.
func (r *Registry) CommitProgress(_ context.Context, update domain.ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[update.AssetID]
	if !ok {
		return fmt.Errorf("memory: commit %s: %w", update.AssetID.Hex(), domain.ErrNotFound)
	}
	if a.Version != update.ExpectedVersion {
		return fmt.Errorf("memory: commit %s: version %d, expected %d: %w",
			update.AssetID.Hex(), a.Version, update.ExpectedVersion, domain.ErrConcurrentUpdate)
	}
	if se := update.Settled; se != nil {
		key, err := domain.Encode(se.Event)
		if err != nil {
			return fmt.Errorf("memory: commit %s: %w", a.ID.Hex(), err)
		}
		if _, dup := r.settled[a.ID][key]; dup {
			return fmt.Errorf("memory: commit %s: %s settled twice: %w", a.ID.Hex(), se.Event, domain.ErrAlreadyExists)
		}
		if r.settled[a.ID] == nil {
			r.settled[a.ID] = make(map[common.Hash]domain.SettledEvent)
		}
		r.settled[a.ID][key] = *se
	}

	a.State = update.State
	a.FinalizedState = update.FinalizedState
	a.Cursor = update.Cursor
	a.PendingEvents = update.PendingEvents
	if a.PendingEvents == nil {
		a.PendingEvents = []domain.Event{}
	}
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	r.assets[a.ID] = clone(a)
	return nil
}

func (r *Registry) ListAssets(_ context.Context, opts domain.ListOpts) ([]domain.AssetSummary, error) {
	r.mu.RLock()
	out := make([]domain.AssetSummary, 0, len(r.assets))
	for _, a := range r.assets {
		if len(opts.Performance) > 0 && !slices.Contains(opts.Performance, a.State.ContractPerformance) {
			continue
		}
		if opts.Since != nil && a.UpdatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && a.UpdatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, a.Summary())
	}
	created := make(map[domain.AssetID]time.Time, len(out))
	for _, s := range out {
		created[s.ID] = r.assets[s.ID].CreatedAt
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ci, cj := created[out[i].ID], created[out[j].ID]
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return out[i].ID.Cmp(out[j].ID) < 0
	})
	return page(out, opts), nil
}

func (r *Registry) ListSettledEvents(_ context.Context, id domain.AssetID) ([]domain.SettledEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.assets[id]; !ok {
		return nil, fmt.Errorf("memory: settled events %s: %w", id.Hex(), domain.ErrNotFound)
	}
	out := make([]domain.SettledEvent, 0, len(r.settled[id]))
	for _, se := range r.settled[id] {
		out = append(out, se)
	}
	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i].Event, out[j].Event) })
	return out, nil
}

// ListClosedBefore returns unarchived assets in a final state last updated
// before the cutoff.
func (r *Registry) ListClosedBefore(_ context.Context, before time.Time, limit int) ([]domain.AssetID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var closed []domain.Asset
	for id, a := range r.assets {
		if _, done := r.archived[id]; done {
			continue
		}
		if a.State.ContractPerformance.Final() && a.UpdatedAt.Before(before) {
			closed = append(closed, a)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].UpdatedAt.Before(closed[j].UpdatedAt) })
	if limit > 0 && len(closed) > limit {
		closed = closed[:limit]
	}
	ids := make([]domain.AssetID, len(closed))
	for i, a := range closed {
		ids[i] = a.ID
	}
	return ids, nil
}

func (r *Registry) MarkArchived(_ context.Context, id domain.AssetID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[id]; !ok {
		return fmt.Errorf("memory: mark archived %s: %w", id.Hex(), domain.ErrNotFound)
	}
	r.archived[id] = at
	return nil
}

func page[T any](rows []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return rows[:0]
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}
	return rows
}
