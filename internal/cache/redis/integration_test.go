package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// testClient connects to REDIS_ADDR (default localhost:6379) under a fresh
// namespace and removes that namespace afterwards. The test is skipped when
// no server answers.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ns := "actus-test-" + uuid.NewString()
	c, err := New(ctx, ClientConfig{Addr: addr, Namespace: ns})
	if err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		iter := c.rdb.Scan(ctx, 0, ns+":*", 100).Iterator()
		for iter.Next(ctx) {
			c.rdb.Del(ctx, iter.Val())
		}
		_ = c.Close()
	})
	return c
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(testClient(t))

	unlock, err := lm.Acquire(ctx, "asset:0x01", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "asset:0x01", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	other, err := lm.Acquire(ctx, "asset:0x02", time.Minute)
	require.NoError(t, err, "locks are per key")
	other()

	unlock()
	unlock()
	again, err := lm.Acquire(ctx, "asset:0x01", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockManagerExpiry(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(testClient(t))

	stale, err := lm.Acquire(ctx, "asset:0x01", 100*time.Millisecond)
	require.NoError(t, err)

	var next func()
	require.Eventually(t, func() bool {
		next, err = lm.Acquire(ctx, "asset:0x01", time.Minute)
		return err == nil
	}, 2*time.Second, 50*time.Millisecond, "the lock frees itself after its TTL")

	// the expired holder must not release the new holder's lock
	stale()
	_, err = lm.Acquire(ctx, "asset:0x01", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	next()
	last, err := lm.Acquire(ctx, "asset:0x01", time.Minute)
	require.NoError(t, err)
	last()
}

func TestDataProvider(t *testing.T) {
	ctx := context.Background()
	dp := NewDataProvider(testClient(t))
	ts := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	_, found, err := dp.GetDataPoint(ctx, "SOFR", ts)
	require.NoError(t, err)
	assert.False(t, found, "nothing published yet")

	require.NoError(t, dp.SetDataPoint(ctx, "SOFR", ts, fixed.MustParse("0.0525")))
	v, found, err := dp.GetDataPoint(ctx, "SOFR", ts)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fixed.MustParse("0.0525"), v)

	// lookups are exact, never the nearest observation
	_, found, err = dp.GetDataPoint(ctx, "SOFR", ts.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = dp.GetDataPoint(ctx, "ESTR", ts)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, dp.SetDataPoint(ctx, "SOFR", ts, fixed.MustParse("0.05")))
	v, _, err = dp.GetDataPoint(ctx, "SOFR", ts)
	require.NoError(t, err)
	assert.Equal(t, fixed.MustParse("0.05"), v, "a republished second replaces the old value")

	assert.Error(t, dp.SetDataPoint(ctx, "", ts, fixed.Zero))
}

func TestDataProviderHistory(t *testing.T) {
	ctx := context.Background()
	dp := NewDataProvider(testClient(t))
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []string{"0.05", "0.051", "0.052", "0.053"} {
		require.NoError(t, dp.SetDataPoint(ctx, "SOFR", t0.AddDate(0, i, 0), fixed.MustParse(v)))
	}

	got, err := dp.History(ctx, "SOFR", t0.AddDate(0, 1, 0), t0.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, []domain.DataPoint{
		{Timestamp: t0.AddDate(0, 1, 0), Value: fixed.MustParse("0.051")},
		{Timestamp: t0.AddDate(0, 2, 0), Value: fixed.MustParse("0.052")},
	}, got)

	got, err = dp.History(ctx, "ESTR", t0, t0.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSignalBusPubSub(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sb := NewSignalBus(testClient(t))

	exact, err := sb.Subscribe(ctx, "asset:progressed")
	require.NoError(t, err)
	pattern, err := sb.Subscribe(ctx, "asset:*")
	require.NoError(t, err)

	require.NoError(t, sb.Publish(ctx, "asset:progressed", []byte(`{"event":"IP"}`)))

	for _, ch := range []<-chan []byte{exact, pattern} {
		select {
		case msg := <-ch:
			assert.Equal(t, `{"event":"IP"}`, string(msg))
		case <-ctx.Done():
			t.Fatal("no message received")
		}
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-exact
		return !open
	}, 2*time.Second, 10*time.Millisecond, "the subscription closes with its context")
}

func TestSignalBusStream(t *testing.T) {
	ctx := context.Background()
	sb := NewSignalBus(testClient(t))

	msgs, err := sb.StreamRead(ctx, "asset-events", "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, sb.StreamAppend(ctx, "asset-events", []byte(p)))
	}
	msgs, err = sb.StreamRead(ctx, "asset-events", "", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Payload))
	assert.Equal(t, "b", string(msgs[1].Payload))

	rest, err := sb.StreamRead(ctx, "asset-events", msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(testClient(t))

	for i := range 3 {
		ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "over the limit")

	ok, err = rl.Allow(ctx, "client-b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are limited separately")

	ok, err = rl.Allow(ctx, "client-c", 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		ok, err := rl.Allow(ctx, "client-c", 1, 200*time.Millisecond)
		return err == nil && ok
	}, 2*time.Second, 50*time.Millisecond, "the window slides")
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(testClient(t))

	require.NoError(t, rl.Wait(context.Background(), "client-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "client-a")
	assert.ErrorIs(t, err, context.DeadlineExceeded, "one request per second")
}
