package domain

import (
	"context"
	"time"

	"github.com/alanyoungcy/actus/internal/fixed"
)

// DataPoint is one observation of a market object.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     fixed.Int `json:"value"`
}

// DataProvider serves market data points by market object code and time.
// GetDataPoint reports found=false when nothing was published; callers
// must not substitute a default. History lists the points within [from, to],
// oldest first.
type DataProvider interface {
	GetDataPoint(ctx context.Context, marketObjectCode string, ts time.Time) (value fixed.Int, found bool, err error)
	SetDataPoint(ctx context.Context, marketObjectCode string, ts time.Time, value fixed.Int) error
	History(ctx context.Context, marketObjectCode string, from, to time.Time) ([]DataPoint, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
