package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
)

// DataProvider implements domain.DataProvider with one sorted set per
// market object code at "md:{code}". Members are "{unix}|{value}" scored
// by the Unix second of the observation, so a lookup is an exact score
// range.
type DataProvider struct {
	c *Client
}

var _ domain.DataProvider = (*DataProvider)(nil)

// NewDataProvider creates a DataProvider backed by the given Client.
func NewDataProvider(c *Client) *DataProvider {
	return &DataProvider{c: c}
}

func encodeMember(ts time.Time, v fixed.Int) string {
	return strconv.FormatInt(ts.Unix(), 10) + "|" + v.String()
}

func decodeMember(m string) (domain.DataPoint, error) {
	secs, val, ok := strings.Cut(m, "|")
	if !ok {
		return domain.DataPoint{}, fmt.Errorf("redis: malformed data point %q", m)
	}
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return domain.DataPoint{}, fmt.Errorf("redis: malformed data point time %q: %w", m, err)
	}
	v, err := fixed.Parse(val)
	if err != nil {
		return domain.DataPoint{}, fmt.Errorf("redis: malformed data point value %q: %w", m, err)
	}
	return domain.DataPoint{Timestamp: time.Unix(sec, 0).UTC(), Value: v}, nil
}

func score(ts time.Time) string {
	return strconv.FormatInt(ts.Unix(), 10)
}

// SetDataPoint stores value for code at ts, replacing an earlier value for
// the same second.
func (dp *DataProvider) SetDataPoint(ctx context.Context, code string, ts time.Time, value fixed.Int) error {
	if code == "" {
		return fmt.Errorf("redis: set data point: empty market object code")
	}
	key := dp.c.Key("md", code)
	pipe := dp.c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, score(ts), score(ts))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts.Unix()), Member: encodeMember(ts, value)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set data point %s: %w", code, err)
	}
	return nil
}

// GetDataPoint returns the value published for code at exactly ts.
func (dp *DataProvider) GetDataPoint(ctx context.Context, code string, ts time.Time) (fixed.Int, bool, error) {
	members, err := dp.c.rdb.ZRangeByScore(ctx, dp.c.Key("md", code), &redis.ZRangeBy{
		Min:   score(ts),
		Max:   score(ts),
		Count: 1,
	}).Result()
	if err != nil {
		return fixed.Zero, false, fmt.Errorf("redis: get data point %s: %w", code, err)
	}
	if len(members) == 0 {
		return fixed.Zero, false, nil
	}
	p, err := decodeMember(members[0])
	if err != nil {
		return fixed.Zero, false, err
	}
	return p.Value, true, nil
}

// History returns the points of code within [from, to], oldest first.
func (dp *DataProvider) History(ctx context.Context, code string, from, to time.Time) ([]domain.DataPoint, error) {
	members, err := dp.c.rdb.ZRangeByScore(ctx, dp.c.Key("md", code), &redis.ZRangeBy{
		Min: score(from),
		Max: score(to),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: data point history %s: %w", code, err)
	}
	out := make([]domain.DataPoint, 0, len(members))
	for _, m := range members {
		p, err := decodeMember(m)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
