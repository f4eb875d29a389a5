package keeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/actus/internal/actor"
	"github.com/alanyoungcy/actus/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeAssets struct {
	mu     sync.Mutex
	ids    []domain.AssetID
	errs   map[domain.AssetID]error
	calls  map[domain.AssetID]int
	listed int
}

func newFakeAssets(n int) *fakeAssets {
	f := &fakeAssets{errs: map[domain.AssetID]error{}, calls: map[domain.AssetID]int{}}
	for i := range n {
		f.ids = append(f.ids, common.BytesToHash([]byte{byte(i + 1)}))
	}
	return f
}

func (f *fakeAssets) ListActive(_ context.Context, limit, offset int) ([]domain.AssetSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	var out []domain.AssetSummary
	for i := offset; i < len(f.ids) && len(out) < limit; i++ {
		out = append(out, domain.AssetSummary{ID: f.ids[i]})
	}
	return out, nil
}

func (f *fakeAssets) ProgressDue(_ context.Context, id domain.AssetID) ([]actor.ProgressResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return []actor.ProgressResult{{AssetID: id}, {AssetID: id}}, nil
}

type fakeArchiver struct {
	batches []int64
	err     error
	befores []time.Time
}

func (a *fakeArchiver) ArchiveClosedAssets(_ context.Context, before time.Time) (int64, error) {
	a.befores = append(a.befores, before)
	if len(a.batches) == 0 {
		return 0, a.err
	}
	n := a.batches[0]
	a.batches = a.batches[1:]
	return n, nil
}

type fakeAlerts struct{ titles []string }

func (a *fakeAlerts) NotifyAll(_ context.Context, title, _ string) error {
	a.titles = append(a.titles, title)
	return nil
}

func TestSweep(t *testing.T) {
	assets := newFakeAssets(5)
	assets.errs[assets.ids[1]] = domain.ErrLockHeld
	assets.errs[assets.ids[2]] = errors.New("boom")
	assets.errs[assets.ids[3]] = domain.ErrDataNotAvailable

	k := New(assets, nil, nil, Config{Concurrency: 2, BatchSize: 2}, discard())
	stats, err := k.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stats{Assets: 5, Steps: 4, Skipped: 2, Failed: 1}, stats)
	assert.Equal(t, 3, assets.listed, "pages of 2, 2 and 1")
	for _, id := range assets.ids {
		assert.Equal(t, 1, assets.calls[id])
	}
}

func TestSweepSkipsClosedAssets(t *testing.T) {
	assets := newFakeAssets(3)
	// closed between listing and progression
	assets.errs[assets.ids[0]] = fmt.Errorf("actor: progress %s: %w: MD", assets.ids[0].Hex(), domain.ErrAssetFinalState)
	assets.errs[assets.ids[2]] = fmt.Errorf("actor: progress %s: %w: DF", assets.ids[2].Hex(), domain.ErrAssetFinalState)

	k := New(assets, nil, nil, Config{Concurrency: 1, BatchSize: 10}, discard())
	stats, err := k.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Assets: 3, Steps: 2, Skipped: 2, Failed: 0}, stats)
	assert.True(t, benign(assets.errs[assets.ids[0]]))
}

func TestArchive(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	arch := &fakeArchiver{batches: []int64{3, 2}}
	alerts := &fakeAlerts{}
	k := New(newFakeAssets(0), arch, alerts, Config{ArchiveAfter: 24 * time.Hour}, discard())
	k.now = func() time.Time { return now }

	assert.Equal(t, int64(5), k.Archive(context.Background()))
	require.Len(t, arch.befores, 3)
	assert.Equal(t, now.Add(-24*time.Hour), arch.befores[0])
	assert.Empty(t, alerts.titles)

	arch.err = errors.New("bucket gone")
	assert.Equal(t, int64(0), k.Archive(context.Background()))
	assert.Equal(t, []string{"Archive failed"}, alerts.titles)
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	assets := newFakeAssets(1)
	k := New(assets, &fakeArchiver{}, nil, Config{Interval: 10 * time.Millisecond, ArchiveCron: "0 3 * * *"}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	require.Eventually(t, func() bool {
		assets.mu.Lock()
		defer assets.mu.Unlock()
		return assets.calls[assets.ids[0]] >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("keeper did not stop")
	}
}

func TestRunRejectsBadCron(t *testing.T) {
	k := New(newFakeAssets(0), &fakeArchiver{}, nil, Config{ArchiveCron: "whenever"}, discard())
	assert.Error(t, k.Run(context.Background()))
}
