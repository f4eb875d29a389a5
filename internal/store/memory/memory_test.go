package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

func testAsset(id byte, created time.Time) domain.Asset {
	return domain.Asset{
		ID:            common.BytesToHash([]byte{id}),
		Terms:         domain.Terms{ContractType: domain.ContractPAM},
		State:         domain.State{ContractPerformance: domain.PerformancePerformant},
		Schedule:      []domain.Event{domain.NewEvent(domain.EventIED, created), domain.NewEvent(domain.EventMD, created.AddDate(1, 0, 0))},
		PendingEvents: []domain.Event{},
		Version:       1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestRegistryCommitProgress(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	a := testAsset(1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, r.RegisterAsset(ctx, a))
	assert.ErrorIs(t, r.RegisterAsset(ctx, a), domain.ErrAlreadyExists)

	ied := a.Schedule[0]
	settled, _, err := r.IsEventSettled(ctx, a.ID, ied)
	require.NoError(t, err)
	assert.False(t, settled)

	update := domain.ProgressUpdate{
		AssetID:         a.ID,
		ExpectedVersion: 1,
		State:           domain.State{ContractPerformance: domain.PerformancePerformant, StatusDate: ied.ScheduleTime},
		Cursor:          1,
		Settled:         &domain.SettledEvent{Event: ied, Payoff: fixed.MustParse("-100")},
	}
	require.NoError(t, r.CommitProgress(ctx, update))
	assert.ErrorIs(t, r.CommitProgress(ctx, update), domain.ErrConcurrentUpdate)

	settled, paid, err := r.IsEventSettled(ctx, a.ID, ied)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, fixed.MustParse("-100"), paid)

	next, err := r.GetNextScheduledEvent(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Schedule[1], next)

	got, err := r.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.NotNil(t, got.PendingEvents)

	_, err = r.GetAsset(ctx, common.Hash{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	a := testAsset(1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, r.RegisterAsset(ctx, a))

	got, err := r.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	got.Schedule[0] = domain.NoEvent

	again, err := r.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Schedule[0], again.Schedule[0])
}

func TestRegistryListAssets(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		a := testAsset(byte(i+1), base.AddDate(0, 0, i))
		if i == 4 {
			a.State.ContractPerformance = domain.PerformanceDelinquent
		}
		require.NoError(t, r.RegisterAsset(ctx, a))
	}

	all, err := r.ListAssets(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, common.BytesToHash([]byte{1}), all[0].ID)

	paged, err := r.ListAssets(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, common.BytesToHash([]byte{2}), paged[0].ID)

	late, err := r.ListAssets(ctx, domain.ListOpts{Performance: []domain.ContractPerformance{domain.PerformanceDelinquent}})
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, common.BytesToHash([]byte{5}), late[0].ID)

	none, err := r.ListAssets(ctx, domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedgerConfirm(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	id := common.BytesToHash([]byte{1})
	ev := domain.NewEvent(domain.EventIP, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	instr := domain.SettlementInstruction{
		AssetID:  id,
		Event:    ev,
		From:     common.HexToAddress("0x01"),
		To:       common.HexToAddress("0x02"),
		Currency: "USD",
		Amount:   fixed.MustParse("100"),
	}

	ok, err := l.Confirm(ctx, instr)
	require.NoError(t, err)
	assert.False(t, ok)

	pay := func(amount string, to common.Address) {
		require.NoError(t, l.RecordPayment(ctx, domain.Payment{
			AssetID: id, Event: ev, From: instr.From, To: to, Currency: "USD", Amount: fixed.MustParse(amount),
		}))
	}
	pay("60", instr.To)
	pay("500", common.HexToAddress("0x03"))
	ok, err = l.Confirm(ctx, instr)
	require.NoError(t, err)
	assert.False(t, ok, "payments to another party do not count")

	pay("40", instr.To)
	ok, err = l.Confirm(ctx, instr)
	require.NoError(t, err)
	assert.True(t, ok)

	payments, err := l.ListPayments(ctx, id)
	require.NoError(t, err)
	assert.Len(t, payments, 3)

	assert.Error(t, l.RecordPayment(ctx, domain.Payment{AssetID: id, Amount: fixed.Zero}))
}

func TestDataProvider(t *testing.T) {
	ctx := context.Background()
	d := NewDataProvider()
	ts := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	_, found, err := d.GetDataPoint(ctx, "SOFR", ts)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, d.SetDataPoint(ctx, "SOFR", ts, fixed.MustParse("0.053")))
	v, found, err := d.GetDataPoint(ctx, "SOFR", ts)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fixed.MustParse("0.053"), v)

	_, found, err = d.GetDataPoint(ctx, "SOFR", ts.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	l := NewLockManager()

	unlock, err := l.Acquire(ctx, "asset:1", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "asset:1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()
	again, err := l.Acquire(ctx, "asset:1", time.Minute)
	require.NoError(t, err)
	again()

	_, err = l.Acquire(ctx, "asset:2", -time.Second)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "asset:2", time.Minute)
	assert.NoError(t, err, "expired locks are taken over")
}

func TestSignalBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewSignalBus()

	ch, err := b.Subscribe(ctx, domain.ChannelAssetProgressed)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, domain.ChannelAssetProgressed, []byte("one")))
	assert.Equal(t, []byte("one"), <-ch)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, b.StreamAppend(ctx, domain.StreamAssetEvents, []byte(p)))
	}
	msgs, err := b.StreamRead(ctx, domain.StreamAssetEvents, "1-0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2-0", msgs[0].ID)
	assert.Equal(t, []byte("c"), msgs[1].Payload)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}
