package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// AssetRegistry implements domain.AssetRegistry using PostgreSQL. Terms,
// state and ownership are stored as JSONB; schedules and pending events
// are rows of 32-byte event encodings.
type AssetRegistry struct {
	pool *pgxpool.Pool
}

var _ domain.AssetRegistry = (*AssetRegistry)(nil)

// NewAssetRegistry creates a new AssetRegistry backed by the given pool.
func NewAssetRegistry(pool *pgxpool.Pool) *AssetRegistry {
	return &AssetRegistry{pool: pool}
}

// RegisterAsset inserts the asset with its schedule in one transaction.
func (s *AssetRegistry) RegisterAsset(ctx context.Context, a domain.Asset) error {
	terms, err := json.Marshal(a.Terms)
	if err != nil {
		return fmt.Errorf("postgres: marshal terms: %w", err)
	}
	state, err := json.Marshal(a.State)
	if err != nil {
		return fmt.Errorf("postgres: marshal state: %w", err)
	}
	ownership, err := json.Marshal(a.Ownership)
	if err != nil {
		return fmt.Errorf("postgres: marshal ownership: %w", err)
	}

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		const query = `
			INSERT INTO assets (
				id, contract_type, terms, state, ownership,
				performance, status_date, cursor_pos, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`
		tag, err := tx.Exec(ctx, query,
			a.ID.Bytes(), string(a.Terms.ContractType), terms, state, ownership,
			string(a.State.ContractPerformance), a.State.StatusDate, a.Cursor, a.Version,
			a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: register asset %s: %w", a.ID.Hex(), err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: register asset %s: %w", a.ID.Hex(), domain.ErrAlreadyExists)
		}

		rows := make([][]any, len(a.Schedule))
		for i, ev := range a.Schedule {
			key, err := domain.Encode(ev)
			if err != nil {
				return fmt.Errorf("postgres: register asset %s: %w", a.ID.Hex(), err)
			}
			rows[i] = []any{a.ID.Bytes(), i, key.Bytes(), int16(ev.Type), ev.ScheduleTime}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"asset_schedule"},
			[]string{"asset_id", "seq", "event", "event_type", "schedule_time"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("postgres: insert schedule %s: %w", a.ID.Hex(), err)
		}
		return nil
	})
}

// GetAsset loads the asset with its schedule and pending events.
func (s *AssetRegistry) GetAsset(ctx context.Context, id domain.AssetID) (domain.Asset, error) {
	const query = `
		SELECT terms, state, finalized_state, ownership, cursor_pos, version, created_at, updated_at
		FROM assets WHERE id = $1`

	a := domain.Asset{ID: id}
	var terms, state, finalized, ownership []byte
	err := s.pool.QueryRow(ctx, query, id.Bytes()).Scan(
		&terms, &state, &finalized, &ownership, &a.Cursor, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Asset{}, fmt.Errorf("postgres: asset %s: %w", id.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Asset{}, fmt.Errorf("postgres: get asset %s: %w", id.Hex(), err)
	}
	if err := json.Unmarshal(terms, &a.Terms); err != nil {
		return domain.Asset{}, fmt.Errorf("postgres: unmarshal terms %s: %w", id.Hex(), err)
	}
	if err := json.Unmarshal(state, &a.State); err != nil {
		return domain.Asset{}, fmt.Errorf("postgres: unmarshal state %s: %w", id.Hex(), err)
	}
	if err := json.Unmarshal(ownership, &a.Ownership); err != nil {
		return domain.Asset{}, fmt.Errorf("postgres: unmarshal ownership %s: %w", id.Hex(), err)
	}
	if finalized != nil {
		var fs domain.State
		if err := json.Unmarshal(finalized, &fs); err != nil {
			return domain.Asset{}, fmt.Errorf("postgres: unmarshal finalized state %s: %w", id.Hex(), err)
		}
		a.FinalizedState = &fs
	}

	if a.Schedule, err = s.events(ctx, `SELECT event FROM asset_schedule WHERE asset_id = $1 ORDER BY seq`, id); err != nil {
		return domain.Asset{}, err
	}
	if a.PendingEvents, err = s.events(ctx,
		`SELECT event FROM asset_pending_events WHERE asset_id = $1 ORDER BY schedule_time, event_type`, id); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

func (s *AssetRegistry) events(ctx context.Context, query string, id domain.AssetID) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, id.Bytes())
	if err != nil {
		return nil, fmt.Errorf("postgres: query events %s: %w", id.Hex(), err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev, err := domain.Decode(common.BytesToHash(raw))
		if err != nil {
			return nil, fmt.Errorf("postgres: decode event %s: %w", id.Hex(), err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: query events rows: %w", err)
	}
	return events, nil
}

func (s *AssetRegistry) GetTerms(ctx context.Context, id domain.AssetID) (domain.Terms, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT terms FROM assets WHERE id = $1`, id.Bytes()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Terms{}, fmt.Errorf("postgres: terms %s: %w", id.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.Terms{}, fmt.Errorf("postgres: get terms %s: %w", id.Hex(), err)
	}
	var t domain.Terms
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.Terms{}, fmt.Errorf("postgres: unmarshal terms %s: %w", id.Hex(), err)
	}
	return t, nil
}

func (s *AssetRegistry) GetState(ctx context.Context, id domain.AssetID) (domain.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM assets WHERE id = $1`, id.Bytes()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.State{}, fmt.Errorf("postgres: state %s: %w", id.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("postgres: get state %s: %w", id.Hex(), err)
	}
	var st domain.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.State{}, fmt.Errorf("postgres: unmarshal state %s: %w", id.Hex(), err)
	}
	return st, nil
}

// SetState overwrites the state outside of a progression and bumps the
// version so in-flight progressions fail their commit.
func (s *AssetRegistry) SetState(ctx context.Context, id domain.AssetID, st domain.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("postgres: marshal state: %w", err)
	}
	const query = `
		UPDATE assets SET state = $2, performance = $3, status_date = $4,
			version = version + 1, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id.Bytes(), raw, string(st.ContractPerformance), st.StatusDate)
	if err != nil {
		return fmt.Errorf("postgres: set state %s: %w", id.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set state %s: %w", id.Hex(), domain.ErrNotFound)
	}
	return nil
}

func (s *AssetRegistry) GetNextScheduledEvent(ctx context.Context, id domain.AssetID) (domain.Event, error) {
	const query = `
		SELECT s.event FROM assets a
		LEFT JOIN asset_schedule s ON s.asset_id = a.id AND s.seq = a.cursor_pos
		WHERE a.id = $1`
	var raw []byte
	err := s.pool.QueryRow(ctx, query, id.Bytes()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NoEvent, fmt.Errorf("postgres: next event %s: %w", id.Hex(), domain.ErrNotFound)
	}
	if err != nil {
		return domain.NoEvent, fmt.Errorf("postgres: next event %s: %w", id.Hex(), err)
	}
	if raw == nil {
		return domain.NoEvent, nil
	}
	return domain.Decode(common.BytesToHash(raw))
}

func (s *AssetRegistry) IsEventSettled(ctx context.Context, id domain.AssetID, ev domain.Event) (bool, fixed.Int, error) {
	key, err := domain.Encode(ev)
	if err != nil {
		return false, fixed.Zero, fmt.Errorf("postgres: settled %s: %w", id.Hex(), err)
	}
	var payoff string
	err = s.pool.QueryRow(ctx,
		`SELECT payoff::text FROM settled_events WHERE asset_id = $1 AND event = $2`,
		id.Bytes(), key.Bytes(),
	).Scan(&payoff)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fixed.Zero, nil
	}
	if err != nil {
		return false, fixed.Zero, fmt.Errorf("postgres: settled %s %s: %w", id.Hex(), ev, err)
	}
	v, err := fixed.Parse(payoff)
	if err != nil {
		return false, fixed.Zero, fmt.Errorf("postgres: parse payoff: %w", err)
	}
	return true, v, nil
}

// CommitProgress writes state, cursor, pending events and the settled
// record in one transaction guarded by the version column.
func (s *AssetRegistry) CommitProgress(ctx context.Context, u domain.ProgressUpdate) error {
	state, err := json.Marshal(u.State)
	if err != nil {
		return fmt.Errorf("postgres: marshal state: %w", err)
	}
	var finalized []byte
	if u.FinalizedState != nil {
		if finalized, err = json.Marshal(u.FinalizedState); err != nil {
			return fmt.Errorf("postgres: marshal finalized state: %w", err)
		}
	}
	id := u.AssetID.Bytes()

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		const update = `
			UPDATE assets SET
				state = $3, finalized_state = $4, performance = $5, status_date = $6,
				cursor_pos = $7, version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2`
		tag, err := tx.Exec(ctx, update, id, u.ExpectedVersion, state, finalized,
			string(u.State.ContractPerformance), u.State.StatusDate, u.Cursor)
		if err != nil {
			return fmt.Errorf("postgres: commit %s: %w", u.AssetID.Hex(), err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM assets WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("postgres: commit %s: %w", u.AssetID.Hex(), err)
			}
			if !exists {
				return fmt.Errorf("postgres: commit %s: %w", u.AssetID.Hex(), domain.ErrNotFound)
			}
			return fmt.Errorf("postgres: commit %s: %w", u.AssetID.Hex(), domain.ErrConcurrentUpdate)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM asset_pending_events WHERE asset_id = $1`, id); err != nil {
			return fmt.Errorf("postgres: clear pending %s: %w", u.AssetID.Hex(), err)
		}
		for _, ev := range u.PendingEvents {
			key, err := domain.Encode(ev)
			if err != nil {
				return fmt.Errorf("postgres: insert pending %s: %w", u.AssetID.Hex(), err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO asset_pending_events (asset_id, event, event_type, schedule_time) VALUES ($1, $2, $3, $4)`,
				id, key.Bytes(), int16(ev.Type), ev.ScheduleTime,
			); err != nil {
				return fmt.Errorf("postgres: insert pending %s: %w", u.AssetID.Hex(), err)
			}
		}

		if se := u.Settled; se != nil {
			key, err := domain.Encode(se.Event)
			if err != nil {
				return fmt.Errorf("postgres: record settled %s: %w", u.AssetID.Hex(), err)
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO settled_events (asset_id, event, event_type, schedule_time, payoff, settled_at)
				VALUES ($1, $2, $3, $4, $5::numeric, $6)
				ON CONFLICT (asset_id, event) DO NOTHING`,
				id, key.Bytes(), int16(se.Event.Type), se.Event.ScheduleTime,
				se.Payoff.String(), se.SettledAt,
			)
			if err != nil {
				return fmt.Errorf("postgres: record settled %s: %w", u.AssetID.Hex(), err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("postgres: %s settled twice: %w", se.Event, domain.ErrAlreadyExists)
			}
		}
		return nil
	})
}

// ListAssets returns asset summaries ordered by creation time.
func (s *AssetRegistry) ListAssets(ctx context.Context, opts domain.ListOpts) ([]domain.AssetSummary, error) {
	q := newListQuery(`
		SELECT a.id, a.contract_type, a.performance, a.status_date, s.event,
			(SELECT COUNT(*) FROM asset_pending_events p WHERE p.asset_id = a.id),
			a.updated_at
		FROM assets a
		LEFT JOIN asset_schedule s ON s.asset_id = a.id AND s.seq = a.cursor_pos
		WHERE 1=1`)
	if len(opts.Performance) > 0 {
		perf := make([]string, len(opts.Performance))
		for i, p := range opts.Performance {
			perf[i] = string(p)
		}
		q.where("a.performance = ANY(%s)", perf)
	}
	q.timeRange("a.updated_at", opts)
	q.orderAndPage("a.created_at, a.id", opts)

	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list assets: %w", err)
	}
	defer rows.Close()

	out := []domain.AssetSummary{}
	for rows.Next() {
		var (
			sum        domain.AssetSummary
			id, next   []byte
			ct, perf   string
			statusDate time.Time
		)
		if err := rows.Scan(&id, &ct, &perf, &statusDate, &next, &sum.Pending, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan asset summary: %w", err)
		}
		sum.ID = common.BytesToHash(id)
		sum.ContractType = domain.ContractType(ct)
		sum.Performance = domain.ContractPerformance(perf)
		sum.StatusDate = statusDate.UTC()
		sum.NextEvent = domain.NoEvent
		if next != nil {
			if sum.NextEvent, err = domain.Decode(common.BytesToHash(next)); err != nil {
				return nil, fmt.Errorf("postgres: decode next event: %w", err)
			}
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list assets rows: %w", err)
	}
	return out, nil
}

func (s *AssetRegistry) ListSettledEvents(ctx context.Context, id domain.AssetID) ([]domain.SettledEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event, payoff::text, settled_at FROM settled_events
		WHERE asset_id = $1 ORDER BY schedule_time, event_type`, id.Bytes())
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled events %s: %w", id.Hex(), err)
	}
	defer rows.Close()

	out := []domain.SettledEvent{}
	for rows.Next() {
		var (
			raw    []byte
			payoff string
			se     domain.SettledEvent
		)
		if err := rows.Scan(&raw, &payoff, &se.SettledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan settled event: %w", err)
		}
		if se.Event, err = domain.Decode(common.BytesToHash(raw)); err != nil {
			return nil, fmt.Errorf("postgres: decode settled event: %w", err)
		}
		if se.Payoff, err = fixed.Parse(payoff); err != nil {
			return nil, fmt.Errorf("postgres: parse payoff: %w", err)
		}
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settled events rows: %w", err)
	}
	return out, nil
}

// ListClosedBefore returns assets in a final state last updated before the
// cutoff and not yet archived.
func (s *AssetRegistry) ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.AssetID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM assets
		WHERE performance IN ('DF', 'MA', 'TE') AND archived_at IS NULL AND updated_at < $1
		ORDER BY updated_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed assets: %w", err)
	}
	defer rows.Close()

	var ids []domain.AssetID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan asset id: %w", err)
		}
		ids = append(ids, common.BytesToHash(raw))
	}
	return ids, rows.Err()
}

// MarkArchived records that the asset's history was exported.
func (s *AssetRegistry) MarkArchived(ctx context.Context, id domain.AssetID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE assets SET archived_at = $2 WHERE id = $1`, id.Bytes(), at)
	if err != nil {
		return fmt.Errorf("postgres: mark archived %s: %w", id.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark archived %s: %w", id.Hex(), domain.ErrNotFound)
	}
	return nil
}
